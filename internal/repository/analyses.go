package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bidsmith/internal/domain"
)

const (
	skMeta        = "META#"
	attrDraftText = "draftText"
)

func analysisPK(id string) string {
	return "ANALYSIS#" + id
}

// SaveAnalysis persists a new analysis record. Records are write-once apart
// from the draft text.
func (c *Client) SaveAnalysis(ctx context.Context, a domain.SolicitationIntelligence) error {
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Owner) == "" {
		return errors.New("repository: SaveAnalysis: id and owner are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                analysisItem(a),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConflict
		}
		return wrap("SaveAnalysis", err)
	}
	return nil
}

// GetAnalysis loads an analysis by id. A missing record returns ErrNotFound.
func (c *Client) GetAnalysis(ctx context.Context, id string) (domain.SolicitationIntelligence, error) {
	if strings.TrimSpace(id) == "" {
		return domain.SolicitationIntelligence{}, ErrNotFound
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(analysisPK(id), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SolicitationIntelligence{}, wrap("GetAnalysis", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SolicitationIntelligence{}, ErrNotFound
	}
	a, err := itemToAnalysis(out.Item)
	if err != nil {
		return domain.SolicitationIntelligence{}, fmt.Errorf("repository: GetAnalysis decode: %w", err)
	}
	return a, nil
}

// SetDraftText stores the proposal draft once. It fails with ErrConflict if a
// draft already exists or the record is not a valid solicitation, and with
// ErrNotFound if the record is gone.
func (c *Client) SetDraftText(ctx context.Context, id, draft string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(analysisPK(id), skMeta),
		UpdateExpression:    aws.String("SET #d = :d"),
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_not_exists(#d) AND isValid = :true"),
		ExpressionAttributeNames: map[string]string{
			"#d": attrDraftText,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":    &types.AttributeValueMemberS{Value: draft},
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return wrap("SetDraftText", err)
	}
	if _, getErr := c.GetAnalysis(ctx, id); errors.Is(getErr, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

func analysisItem(a domain.SolicitationIntelligence) map[string]types.AttributeValue {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	item := map[string]types.AttributeValue{
		"PK":                &types.AttributeValueMemberS{Value: analysisPK(a.ID)},
		"SK":                &types.AttributeValueMemberS{Value: skMeta},
		"analysisId":        &types.AttributeValueMemberS{Value: a.ID},
		"owner":             &types.AttributeValueMemberS{Value: a.Owner},
		"isValid":           &types.AttributeValueMemberBOOL{Value: a.IsValid},
		"invalidReason":     &types.AttributeValueMemberS{Value: a.InvalidReason},
		"projectTitle":      &types.AttributeValueMemberS{Value: a.ProjectTitle},
		"agency":            &types.AttributeValueMemberS{Value: a.Agency},
		"naicsCode":         &types.AttributeValueMemberS{Value: a.NAICSCode},
		"setAsideType":      &types.AttributeValueMemberS{Value: a.SetAsideType},
		"estimatedValue":    &types.AttributeValueMemberS{Value: a.EstimatedValue},
		"deadline":          &types.AttributeValueMemberS{Value: a.Deadline},
		"complianceItems":   listValue(a.ComplianceItems),
		"winThemes":         listValue(a.WinThemes),
		"keyRisks":          listValue(a.KeyRisks),
		"executiveBriefing": &types.AttributeValueMemberS{Value: a.ExecutiveBriefing},
		"winScore":          numValue(a.WinScore),
		"matchScore":        &types.AttributeValueMemberS{Value: a.MatchScore},
		"degradedStages":    listValue(a.DegradedStages),
		"createdAt":         &types.AttributeValueMemberS{Value: created.UTC().Format(time.RFC3339)},
	}
	if a.DraftText != nil {
		item[attrDraftText] = &types.AttributeValueMemberS{Value: *a.DraftText}
	}
	return item
}

func itemToAnalysis(item map[string]types.AttributeValue) (domain.SolicitationIntelligence, error) {
	var (
		a   domain.SolicitationIntelligence
		err error
	)
	if a.ID, err = strAttr(item, "analysisId"); err != nil {
		return a, err
	}
	if a.Owner, err = strAttr(item, "owner"); err != nil {
		return a, err
	}
	if a.IsValid, err = boolAttr(item, "isValid"); err != nil {
		return a, err
	}
	strFields := []struct {
		key string
		dst *string
	}{
		{"invalidReason", &a.InvalidReason},
		{"projectTitle", &a.ProjectTitle},
		{"agency", &a.Agency},
		{"naicsCode", &a.NAICSCode},
		{"setAsideType", &a.SetAsideType},
		{"estimatedValue", &a.EstimatedValue},
		{"deadline", &a.Deadline},
		{"executiveBriefing", &a.ExecutiveBriefing},
		{"matchScore", &a.MatchScore},
	}
	for _, f := range strFields {
		if *f.dst, err = optStrAttr(item, f.key); err != nil {
			return a, err
		}
	}
	listFields := []struct {
		key string
		dst *[]string
	}{
		{"complianceItems", &a.ComplianceItems},
		{"winThemes", &a.WinThemes},
		{"keyRisks", &a.KeyRisks},
		{"degradedStages", &a.DegradedStages},
	}
	for _, f := range listFields {
		if *f.dst, err = listAttr(item, f.key); err != nil {
			return a, err
		}
	}
	if score, err := optIntAttr(item, "winScore"); err != nil {
		return a, err
	} else if score != nil {
		a.WinScore = *score
	}
	if _, ok := item[attrDraftText]; ok {
		draft, err := strAttr(item, attrDraftText)
		if err != nil {
			return a, err
		}
		a.DraftText = &draft
	}
	created, err := optStrAttr(item, "createdAt")
	if err != nil {
		return a, err
	}
	if created != "" {
		if a.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return a, fmt.Errorf("repository: parse createdAt: %w", err)
		}
	}
	return a, nil
}
