package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"bidsmith/internal/domain"
)

const defaultMinSourceChars = 100

type AnalyzeInput struct {
	Text string
}

// AnalyzeService bills and runs one solicitation analysis.
type AnalyzeService struct {
	ledger         Ledger
	store          AnalysisStore
	pipeline       AnalysisRunner
	minSourceChars int
	logger         *slog.Logger
	now            func() time.Time
}

func NewAnalyzeService(l Ledger, s AnalysisStore, p AnalysisRunner, minSourceChars int, logger *slog.Logger) (*AnalyzeService, error) {
	if l == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: analysis store must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: analysis pipeline must not be nil")
	}
	if minSourceChars <= 0 {
		minSourceChars = defaultMinSourceChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeService{
		ledger:         l,
		store:          s,
		pipeline:       p,
		minSourceChars: minSourceChars,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Analyze checks input, charges one unit, runs the pipeline and persists the
// record. A pipeline or persistence failure after billing is refunded.
func (s *AnalyzeService) Analyze(ctx context.Context, caller domain.Caller, in AnalyzeInput) (domain.SolicitationIntelligence, error) {
	if caller.Service || strings.TrimSpace(caller.Identity) == "" {
		return domain.SolicitationIntelligence{}, newError(ErrorUnauthenticated, "identity_required", nil)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.SolicitationIntelligence{}, newError(ErrorInvalidInput, "empty_text", nil)
	}
	if utf8.RuneCountInString(text) < s.minSourceChars {
		return domain.SolicitationIntelligence{}, newError(ErrorInvalidInput, "text_too_short", nil)
	}

	if _, err := s.ledger.ChargeOne(ctx, caller.Identity); err != nil {
		return domain.SolicitationIntelligence{}, chargeError(err)
	}

	rec, err := s.pipeline.Run(ctx, text)
	if err != nil {
		refund(ctx, s.ledger, s.logger, caller.Identity, "analysis_failed")
		return domain.SolicitationIntelligence{}, upstreamError("analysis_failed", err)
	}

	rec.ID = newUUID()
	rec.Owner = caller.Identity
	rec.CreatedAt = s.now().UTC().Truncate(time.Second)
	if err := s.store.SaveAnalysis(ctx, rec); err != nil {
		refund(ctx, s.ledger, s.logger, caller.Identity, "analysis_save_failed")
		return domain.SolicitationIntelligence{}, storeError("dynamodb_write_error", err)
	}

	s.logger.Info("analysis complete", "analysis_id", rec.ID, "valid", rec.IsValid, "win_score", rec.WinScore, "degraded", rec.DegradedStages)
	return rec, nil
}
