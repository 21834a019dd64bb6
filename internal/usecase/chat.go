package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bidsmith/internal/domain"
	"bidsmith/internal/pipeline"
	"bidsmith/internal/repository"
)

const (
	maxChatTurns        = 40
	maxChatMessageChars = 20000
	maxConstraintChars  = 4000
)

type ChatInput struct {
	Messages    []domain.ChatMessage
	AnalysisID  string
	Constraints string
}

// ChatOutput is a committed answer stream. Feedback is the critique excerpt
// or a marker for follow-ups and failover.
type ChatOutput struct {
	Stream   domain.TextStream
	Feedback string
	Path     pipeline.DraftPath
	Billed   bool
}

// ChatService runs the draft pipeline for conversational turns.
type ChatService struct {
	ledger  Ledger
	store   AnalysisStore
	drafter Drafter
	logger  *slog.Logger
}

func NewChatService(l Ledger, s AnalysisStore, d Drafter, logger *slog.Logger) (*ChatService, error) {
	if l == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: analysis store must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: drafter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{ledger: l, store: s, drafter: d, logger: logger}, nil
}

// Chat validates the turn, seeds context from a referenced analysis, bills
// user callers and returns the answer stream. The internal service caller is
// never billed and may reference any analysis.
func (s *ChatService) Chat(ctx context.Context, caller domain.Caller, in ChatInput) (ChatOutput, error) {
	if !caller.Authenticated() {
		return ChatOutput{}, newError(ErrorUnauthenticated, "identity_required", nil)
	}
	conv, reason := normalizeConversation(in.Messages, maxChatTurns, maxChatMessageChars)
	if reason != "" {
		return ChatOutput{}, newError(ErrorInvalidInput, reason, nil)
	}
	constraints := strings.TrimSpace(in.Constraints)
	if len([]rune(constraints)) > maxConstraintChars {
		return ChatOutput{}, newError(ErrorInvalidInput, "constraints_too_long", nil)
	}

	req := pipeline.DraftRequest{Messages: conv, Constraints: constraints}
	if id := strings.TrimSpace(in.AnalysisID); id != "" {
		rec, err := loadOwnedAnalysis(ctx, s.store, caller, id)
		if err != nil {
			return ChatOutput{}, err
		}
		req.Context = analysisContext(rec)
	}

	billed := !caller.Service
	if billed {
		if _, err := s.ledger.ChargeOne(ctx, caller.Identity); err != nil {
			return ChatOutput{}, chargeError(err)
		}
	}

	res, err := s.drafter.Run(ctx, req)
	if err != nil {
		if billed {
			refund(ctx, s.ledger, s.logger, caller.Identity, "chat_failed")
		}
		return ChatOutput{}, newError(ErrorService, "draft_pipeline_failed", err)
	}
	s.logger.Info("chat answer streaming", "path", res.Path, "critique", res.Critique.Kind.String(), "turns", len(conv), "service", caller.Service)
	return ChatOutput{Stream: res.Stream, Feedback: res.Feedback, Path: res.Path, Billed: billed}, nil
}

// loadOwnedAnalysis hides records owned by someone else behind NOT_FOUND.
func loadOwnedAnalysis(ctx context.Context, store AnalysisStore, caller domain.Caller, id string) (domain.SolicitationIntelligence, error) {
	rec, err := store.GetAnalysis(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SolicitationIntelligence{}, newError(ErrorNotFound, "analysis_not_found", nil)
	}
	if err != nil {
		return domain.SolicitationIntelligence{}, storeError("dynamodb_read_error", err)
	}
	if !caller.Service && rec.Owner != caller.Identity {
		return domain.SolicitationIntelligence{}, newError(ErrorNotFound, "analysis_not_found", nil)
	}
	return rec, nil
}
