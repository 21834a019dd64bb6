package usecase

import (
	"context"
	"errors"
	"strings"

	"bidsmith/internal/domain"
)

type BalanceOutput struct {
	Balance        int `json:"balance"`
	OperationsUsed int `json:"operationsUsed"`
}

type BalanceService struct {
	ledger Ledger
}

func NewBalanceService(l Ledger) (*BalanceService, error) {
	if l == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	return &BalanceService{ledger: l}, nil
}

// Balance reports the caller's balance, bootstrapping new accounts.
func (s *BalanceService) Balance(ctx context.Context, caller domain.Caller) (BalanceOutput, error) {
	if caller.Service || strings.TrimSpace(caller.Identity) == "" {
		return BalanceOutput{}, newError(ErrorUnauthenticated, "identity_required", nil)
	}
	acct, err := s.ledger.Balance(ctx, caller.Identity)
	if err != nil {
		return BalanceOutput{}, storeError("ledger_read_error", err)
	}
	return BalanceOutput{Balance: acct.CurrentBalance(), OperationsUsed: acct.OperationsUsed}, nil
}
