package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"bidsmith/internal/domain"
	"bidsmith/internal/repository"
)

func TestBalance(t *testing.T) {
	_, err := NewBalanceService(nil)
	require.Error(t, err)

	svc, err := NewBalanceService(&fakeLedger{balance: 3, used: 2})
	require.NoError(t, err)
	out, err := svc.Balance(context.Background(), user("u"))
	require.NoError(t, err)
	require.Equal(t, BalanceOutput{Balance: 3, OperationsUsed: 2}, out)

	_, err = svc.Balance(context.Background(), service())
	requireCode(t, err, ErrorUnauthenticated)
	_, err = svc.Balance(context.Background(), domain.Caller{})
	requireCode(t, err, ErrorUnauthenticated)
}

func TestBalance_StoreUnavailable(t *testing.T) {
	svc, err := NewBalanceService(&fakeLedger{chargeErr: fmt.Errorf("ledger: read account: %w", repository.ErrUnavailable)})
	require.NoError(t, err)
	_, err = svc.Balance(context.Background(), user("u"))
	requireCode(t, err, ErrorPersistenceUnavailable)
}
