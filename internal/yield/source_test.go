package yield

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpay/vaultpay/internal/address"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

type fixture struct {
	store   *store.Store
	source  *MockSource
	clock   *clock.Mock
	asset   types.Address
	reserve types.Address
}

func newFixture(t *testing.T, apy float64, funding uint64) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))

	deriver := address.NewDeriver()
	st := store.New(logger)
	source, err := NewMockSource(deriver, mockClock, logger)
	require.NoError(t, err)

	asset, err := types.NewWalletAddress()
	require.NoError(t, err)
	operator, err := types.NewWalletAddress()
	require.NoError(t, err)

	f := &fixture{store: st, source: source, clock: mockClock, asset: asset}
	require.NoError(t, st.Atomic(context.Background(), func(tx *store.Tx) error {
		if err := tx.CreateAccount(operator, operator); err != nil {
			return err
		}
		if err := tx.Credit(operator, funding); err != nil {
			return err
		}
		f.reserve, err = source.InitializeReserve(tx, operator, asset, apy, funding)
		return err
	}))
	return f
}

func (f *fixture) openPosition(t *testing.T) (types.Address, AuthoritySignature, types.Address) {
	t.Helper()
	authority, err := types.NewWalletAddress()
	require.NoError(t, err)
	owner, err := types.NewWalletAddress()
	require.NoError(t, err)

	var position types.Address
	var credential []byte
	require.NoError(t, f.store.Atomic(context.Background(), func(tx *store.Tx) error {
		if err := tx.CreateAccount(owner, owner); err != nil {
			return err
		}
		position, credential, err = f.source.OpenPosition(tx, authority, f.asset)
		return err
	}))
	return position, AuthoritySignature{Authority: authority, Proof: credential}, owner
}

func TestOpenPositionTwiceFails(t *testing.T) {
	f := newFixture(t, 0.05, 1_000_000)
	authority, err := types.NewWalletAddress()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		_, _, err := f.source.OpenPosition(tx, authority, f.asset)
		return err
	}))
	err = f.store.Atomic(ctx, func(tx *store.Tx) error {
		_, _, err := f.source.OpenPosition(tx, authority, f.asset)
		return err
	})
	assert.ErrorIs(t, err, types.ErrDuplicateRecord)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t, 0.05, 1_000_000)
	position, sig, wallet := f.openPosition(t)
	ctx := context.Background()

	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.Credit(wallet, 500); err != nil {
			return err
		}
		return f.source.Deposit(tx, position, wallet, 500)
	}))

	// No time has passed: withdrawing the same amount restores the wallet
	// and leaves the principal at zero.
	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		return f.source.Withdraw(tx, position, sig, wallet, 500)
	}))

	require.NoError(t, f.store.View(ctx, func(tx *store.Tx) error {
		principal, accrued, err := f.source.PositionBalance(tx, position)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), principal)
		assert.Equal(t, uint64(0), accrued)
		bal, err := tx.Balance(wallet)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), bal)
		return nil
	}))
}

func TestWithdrawRejectsForgedAuthority(t *testing.T) {
	f := newFixture(t, 0.05, 1_000_000)
	position, sig, wallet := f.openPosition(t)
	ctx := context.Background()

	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.Credit(wallet, 100); err != nil {
			return err
		}
		return f.source.Deposit(tx, position, wallet, 100)
	}))

	forged := AuthoritySignature{Authority: sig.Authority, Proof: []byte("not the credential")}
	err := f.store.Atomic(ctx, func(tx *store.Tx) error {
		return f.source.Withdraw(tx, position, forged, wallet, 100)
	})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestWithdrawExceedingPrincipal(t *testing.T) {
	f := newFixture(t, 0.05, 1_000_000)
	position, sig, wallet := f.openPosition(t)
	ctx := context.Background()

	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.Credit(wallet, 100); err != nil {
			return err
		}
		return f.source.Deposit(tx, position, wallet, 100)
	}))

	err := f.store.Atomic(ctx, func(tx *store.Tx) error {
		return f.source.Withdraw(tx, position, sig, wallet, 101)
	})
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestYieldAccruesOverTime(t *testing.T) {
	f := newFixture(t, 0.10, 10_000_000)
	position, _, wallet := f.openPosition(t)
	ctx := context.Background()

	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.Credit(wallet, 1_000_000); err != nil {
			return err
		}
		return f.source.Deposit(tx, position, wallet, 1_000_000)
	}))

	f.clock.Add(365 * 24 * time.Hour)

	require.NoError(t, f.store.View(ctx, func(tx *store.Tx) error {
		principal, accrued, err := f.source.PositionBalance(tx, position)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000), principal)
		// One year at 10% APY on 1_000_000, allowing float rounding.
		assert.InDelta(t, 100_000, float64(accrued), 100)
		return nil
	}))
}

func TestWithdrawConsumesYieldBeforePrincipal(t *testing.T) {
	f := newFixture(t, 0.10, 10_000_000)
	position, sig, wallet := f.openPosition(t)
	ctx := context.Background()

	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.Credit(wallet, 1_000_000); err != nil {
			return err
		}
		return f.source.Deposit(tx, position, wallet, 1_000_000)
	}))

	f.clock.Add(365 * 24 * time.Hour)

	// Withdraw less than the accrued yield: principal must stay whole.
	require.NoError(t, f.store.Atomic(ctx, func(tx *store.Tx) error {
		return f.source.Withdraw(tx, position, sig, wallet, 50_000)
	}))

	require.NoError(t, f.store.View(ctx, func(tx *store.Tx) error {
		principal, _, err := f.source.PositionBalance(tx, position)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000), principal)
		bal, err := tx.Balance(wallet)
		require.NoError(t, err)
		assert.Equal(t, uint64(50_000), bal)
		return nil
	}))
}

func TestDepositZeroAmount(t *testing.T) {
	f := newFixture(t, 0.05, 1_000_000)
	position, _, wallet := f.openPosition(t)

	err := f.store.Atomic(context.Background(), func(tx *store.Tx) error {
		return f.source.Deposit(tx, position, wallet, 0)
	})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
