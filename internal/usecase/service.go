package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"bidsmith/internal/domain"
	"bidsmith/internal/pipeline"
)

// Ledger gates billable operations.
type Ledger interface {
	ChargeOne(ctx context.Context, identity string) (int, error)
	Refund(ctx context.Context, identity, reason string) error
	Balance(ctx context.Context, identity string) (domain.UsageAccount, error)
}

// AnalysisStore persists analysis records.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a domain.SolicitationIntelligence) error
	GetAnalysis(ctx context.Context, id string) (domain.SolicitationIntelligence, error)
	SetDraftText(ctx context.Context, id, draft string) error
}

// AnalysisRunner runs the extract/strategize/score pipeline.
type AnalysisRunner interface {
	Run(ctx context.Context, source string) (domain.SolicitationIntelligence, error)
}

// Drafter runs the writer/critic/refiner pipeline.
type Drafter interface {
	Run(ctx context.Context, req pipeline.DraftRequest) (pipeline.DraftResult, error)
}

var newUUID = func() string {
	return uuid.NewString()
}

// refund returns a charged unit. It runs detached from caller cancellation
// and only logs failures so the original error reaches the caller.
func refund(ctx context.Context, l Ledger, logger *slog.Logger, identity, reason string) {
	if err := l.Refund(context.WithoutCancel(ctx), identity, reason); err != nil {
		logger.Error("refund failed", "identity", identity, "reason", reason, "err", err)
	}
}
