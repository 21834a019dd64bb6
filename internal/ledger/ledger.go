// Package ledger bills operations against per-identity usage accounts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bidsmith/internal/domain"
	"bidsmith/internal/repository"
)

const (
	DefaultStartingBalance = 5
	maxChargeAttempts      = 3
)

// ErrInsufficientBalance is returned when an account has nothing left to spend.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Store is the account persistence the ledger needs. Its error contract
// follows the repository package: ErrNotFound, ErrConflict and
// ErrConditionFailed drive the charge state machine.
type Store interface {
	GetAccount(ctx context.Context, identity string) (domain.UsageAccount, error)
	CreateAccount(ctx context.Context, identity string, balance, operationsUsed int) error
	DecrementBalance(ctx context.Context, identity string) (int, error)
	MigrateLegacyBalance(ctx context.Context, identity string) error
	IncrementBalance(ctx context.Context, identity string) error
}

// Ledger owns all balance mutations.
type Ledger struct {
	store           Store
	startingBalance int
	logger          *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStartingBalance overrides the balance granted to new accounts.
func WithStartingBalance(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.startingBalance = n
		}
	}
}

// WithLogger sets the logger used for billing events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger: store must not be nil")
	}
	l := &Ledger{
		store:           store,
		startingBalance: DefaultStartingBalance,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// StartingBalance returns the balance granted to a new account.
func (l *Ledger) StartingBalance() int {
	return l.startingBalance
}

// ChargeOne takes one unit from identity's balance. Unknown identities are
// bootstrapped with the starting balance and charged in the same write;
// legacy accounts are migrated first. It returns the remaining balance.
func (l *Ledger) ChargeOne(ctx context.Context, identity string) (int, error) {
	if strings.TrimSpace(identity) == "" {
		return 0, errors.New("ledger: identity is required")
	}
	for attempt := 1; attempt <= maxChargeAttempts; attempt++ {
		remaining, err := l.store.DecrementBalance(ctx, identity)
		if err == nil {
			l.logger.Info("ledger charge", "identity", identity, "remaining", remaining)
			return remaining, nil
		}
		if !errors.Is(err, repository.ErrConditionFailed) {
			return 0, fmt.Errorf("ledger: charge: %w", err)
		}

		acct, err := l.store.GetAccount(ctx, identity)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			err = l.store.CreateAccount(ctx, identity, l.startingBalance-1, 1)
			if err == nil {
				l.logger.Info("ledger account created", "identity", identity, "remaining", l.startingBalance-1)
				return l.startingBalance - 1, nil
			}
			if !errors.Is(err, repository.ErrConflict) {
				return 0, fmt.Errorf("ledger: create account: %w", err)
			}
			// Lost the creation race; retry against the winner's record.
			continue
		case err != nil:
			return 0, fmt.Errorf("ledger: read account: %w", err)
		}

		if acct.NeedsMigration() {
			if err := l.migrate(ctx, identity); err != nil {
				return 0, err
			}
			continue
		}
		if acct.Balance == nil {
			l.logger.Warn("ledger account has no balance field", "identity", identity)
		}
		return 0, ErrInsufficientBalance
	}
	return 0, fmt.Errorf("ledger: charge for %q did not settle after %d attempts", identity, maxChargeAttempts)
}

// Balance returns the spendable balance and operations used. New identities
// are bootstrapped and legacy records migrated as a side effect.
func (l *Ledger) Balance(ctx context.Context, identity string) (domain.UsageAccount, error) {
	if strings.TrimSpace(identity) == "" {
		return domain.UsageAccount{}, errors.New("ledger: identity is required")
	}
	for attempt := 1; attempt <= maxChargeAttempts; attempt++ {
		acct, err := l.store.GetAccount(ctx, identity)
		if errors.Is(err, repository.ErrNotFound) {
			err = l.store.CreateAccount(ctx, identity, l.startingBalance, 0)
			if err == nil {
				balance := l.startingBalance
				return domain.UsageAccount{Identity: identity, Balance: &balance}, nil
			}
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return domain.UsageAccount{}, fmt.Errorf("ledger: create account: %w", err)
		}
		if err != nil {
			return domain.UsageAccount{}, fmt.Errorf("ledger: read account: %w", err)
		}
		if acct.NeedsMigration() {
			if err := l.migrate(ctx, identity); err != nil {
				return domain.UsageAccount{}, err
			}
			continue
		}
		if acct.Balance == nil {
			zero := 0
			acct.Balance = &zero
		}
		return acct, nil
	}
	return domain.UsageAccount{}, fmt.Errorf("ledger: balance for %q did not settle after %d attempts", identity, maxChargeAttempts)
}

// Refund returns one unit after a billed operation failed.
func (l *Ledger) Refund(ctx context.Context, identity, reason string) error {
	if err := l.store.IncrementBalance(ctx, identity); err != nil {
		l.logger.Error("ledger refund failed", "identity", identity, "reason", reason, "err", err)
		return fmt.Errorf("ledger: refund: %w", err)
	}
	l.logger.Info("ledger refund", "identity", identity, "reason", reason)
	return nil
}

func (l *Ledger) migrate(ctx context.Context, identity string) error {
	err := l.store.MigrateLegacyBalance(ctx, identity)
	switch {
	case err == nil:
		l.logger.Info("ledger migrated legacy balance", "identity", identity)
		return nil
	case errors.Is(err, repository.ErrConditionFailed):
		// Another request migrated it first.
		return nil
	default:
		return fmt.Errorf("ledger: migrate: %w", err)
	}
}
