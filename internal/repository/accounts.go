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
	skProfile = "PROFILE#"

	attrBalance        = "balance"
	attrLegacyBalance  = "credits"
	attrOperationsUsed = "operationsUsed"
)

func accountPK(identity string) string {
	return "ACCOUNT#" + identity
}

// GetAccount reads an account with a strongly consistent read. A missing
// account returns ErrNotFound.
func (c *Client) GetAccount(ctx context.Context, identity string) (domain.UsageAccount, error) {
	if strings.TrimSpace(identity) == "" {
		return domain.UsageAccount{}, errors.New("repository: GetAccount: identity is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(accountPK(identity), skProfile),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UsageAccount{}, wrap("GetAccount", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UsageAccount{}, ErrNotFound
	}
	acct, err := itemToAccount(identity, out.Item)
	if err != nil {
		return domain.UsageAccount{}, fmt.Errorf("repository: GetAccount decode: %w", err)
	}
	return acct, nil
}

// CreateAccount writes a new account. An existing account yields ErrConflict.
func (c *Client) CreateAccount(ctx context.Context, identity string, balance, operationsUsed int) error {
	if strings.TrimSpace(identity) == "" {
		return errors.New("repository: CreateAccount: identity is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":               &types.AttributeValueMemberS{Value: accountPK(identity)},
			"SK":               &types.AttributeValueMemberS{Value: skProfile},
			attrBalance:        numValue(balance),
			attrOperationsUsed: numValue(operationsUsed),
			"createdAt":        &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConflict
		}
		return wrap("CreateAccount", err)
	}
	return nil
}

// DecrementBalance atomically takes one unit from a positive balance and
// counts the operation. It returns the remaining balance, or
// ErrConditionFailed when the account is missing, unmigrated or empty.
func (c *Client) DecrementBalance(ctx context.Context, identity string) (int, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(accountPK(identity), skProfile),
		UpdateExpression:    aws.String("SET #b = #b - :one ADD #u :one"),
		ConditionExpression: aws.String("attribute_exists(#b) AND #b > :zero"),
		ExpressionAttributeNames: map[string]string{
			"#b": attrBalance,
			"#u": attrOperationsUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  numValue(1),
			":zero": numValue(0),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, ErrConditionFailed
		}
		return 0, wrap("DecrementBalance", err)
	}
	if out == nil {
		return 0, errors.New("repository: DecrementBalance: empty response")
	}
	remaining, err := intAttr(out.Attributes, attrBalance)
	if err != nil {
		return 0, fmt.Errorf("repository: DecrementBalance decode: %w", err)
	}
	return remaining, nil
}

// MigrateLegacyBalance moves the legacy credits field into balance. It
// applies at most once; later calls return ErrConditionFailed.
func (c *Client) MigrateLegacyBalance(ctx context.Context, identity string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(accountPK(identity), skProfile),
		UpdateExpression:    aws.String("SET #b = #c REMOVE #c"),
		ConditionExpression: aws.String("attribute_not_exists(#b) AND attribute_exists(#c)"),
		ExpressionAttributeNames: map[string]string{
			"#b": attrBalance,
			"#c": attrLegacyBalance,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConditionFailed
		}
		return wrap("MigrateLegacyBalance", err)
	}
	return nil
}

// IncrementBalance returns one unit to an existing account. operationsUsed
// is left untouched.
func (c *Client) IncrementBalance(ctx context.Context, identity string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      key(accountPK(identity), skProfile),
		UpdateExpression:         aws.String("ADD #b :one"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#b": attrBalance},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numValue(1),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return wrap("IncrementBalance", err)
	}
	return nil
}

func itemToAccount(identity string, item map[string]types.AttributeValue) (domain.UsageAccount, error) {
	balance, err := optIntAttr(item, attrBalance)
	if err != nil {
		return domain.UsageAccount{}, err
	}
	legacy, err := optIntAttr(item, attrLegacyBalance)
	if err != nil {
		return domain.UsageAccount{}, err
	}
	used, err := optIntAttr(item, attrOperationsUsed)
	if err != nil {
		return domain.UsageAccount{}, err
	}
	acct := domain.UsageAccount{
		Identity:      identity,
		Balance:       balance,
		LegacyBalance: legacy,
	}
	if used != nil {
		acct.OperationsUsed = *used
	}
	return acct, nil
}
