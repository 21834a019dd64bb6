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

type ProposalInput struct {
	AnalysisID string
}

type ProposalOutput struct {
	AnalysisID string `json:"analysisId"`
	DraftText  string `json:"draftText"`
	Feedback   string `json:"criticFeedback"`
}

// ProposalService drafts the full proposal for an analysis, at most once.
type ProposalService struct {
	ledger  Ledger
	store   AnalysisStore
	drafter Drafter
	logger  *slog.Logger
}

func NewProposalService(l Ledger, s AnalysisStore, d Drafter, logger *slog.Logger) (*ProposalService, error) {
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
	return &ProposalService{ledger: l, store: s, drafter: d, logger: logger}, nil
}

// Propose rejects invalid or already-drafted records before billing, then
// drafts and stores the proposal with a write-once condition. Any failure
// after billing is refunded.
func (s *ProposalService) Propose(ctx context.Context, caller domain.Caller, in ProposalInput) (ProposalOutput, error) {
	if caller.Service || strings.TrimSpace(caller.Identity) == "" {
		return ProposalOutput{}, newError(ErrorUnauthenticated, "identity_required", nil)
	}
	id := strings.TrimSpace(in.AnalysisID)
	if id == "" {
		return ProposalOutput{}, newError(ErrorInvalidInput, "analysis_id_required", nil)
	}
	rec, err := loadOwnedAnalysis(ctx, s.store, caller, id)
	if err != nil {
		return ProposalOutput{}, err
	}
	if !rec.IsValid {
		return ProposalOutput{}, newError(ErrorInvalidInput, "analysis_not_valid_solicitation", nil)
	}
	if rec.HasDraft() {
		return ProposalOutput{}, newError(ErrorConflict, "draft_exists", nil)
	}

	if _, err := s.ledger.ChargeOne(ctx, caller.Identity); err != nil {
		return ProposalOutput{}, chargeError(err)
	}

	res, err := s.drafter.Run(ctx, pipeline.DraftRequest{
		Messages: domain.Conversation{{Role: domain.ChatRoleUser, Content: proposalRequest}},
		Context:  analysisContext(rec),
	})
	if err != nil {
		refund(ctx, s.ledger, s.logger, caller.Identity, "proposal_failed")
		return ProposalOutput{}, newError(ErrorService, "draft_pipeline_failed", err)
	}
	draft, err := pipeline.Collect(res.Stream)
	if err != nil {
		refund(ctx, s.ledger, s.logger, caller.Identity, "proposal_stream_failed")
		return ProposalOutput{}, upstreamError("draft_stream_interrupted", err)
	}

	if err := s.store.SetDraftText(ctx, id, draft); err != nil {
		refund(ctx, s.ledger, s.logger, caller.Identity, "proposal_save_failed")
		switch {
		case errors.Is(err, repository.ErrConflict):
			return ProposalOutput{}, newError(ErrorConflict, "draft_exists", err)
		case errors.Is(err, repository.ErrNotFound):
			return ProposalOutput{}, newError(ErrorNotFound, "analysis_not_found", err)
		default:
			return ProposalOutput{}, storeError("dynamodb_write_error", err)
		}
	}

	s.logger.Info("proposal drafted", "analysis_id", id, "path", res.Path, "chars", len(draft))
	return ProposalOutput{AnalysisID: id, DraftText: draft, Feedback: res.Feedback}, nil
}
