package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configdomain "github.com/vaultpay/vaultpay/internal/domain/config"
	"github.com/vaultpay/vaultpay/internal/domain/subscription"
	vendordomain "github.com/vaultpay/vaultpay/internal/domain/vendor"
	"github.com/vaultpay/vaultpay/internal/protocoltest"
	"github.com/vaultpay/vaultpay/internal/types"
)

// flow holds a config, a registered vendor and a funded subscriber, ready for
// agreements to be opened against them.
type flow struct {
	env *protocoltest.Env

	owner        types.Address
	config       types.Address
	vendorAuth   types.Address
	vendor       types.Address
	vendorWallet types.Address
	treasury     types.Address
	user         types.Address
}

func newFlow(t *testing.T, deposited uint64) *flow {
	t.Helper()
	return newFlowWithFee(t, deposited, 500)
}

func newFlowWithFee(t *testing.T, deposited uint64, feeBps uint16) *flow {
	t.Helper()
	env := protocoltest.New(t)
	ctx := context.Background()

	asset := env.Asset(t)
	env.InitReserve(t, asset, 0.05, 10_000_000_000)

	owner := env.NewWallet(t)
	configAddr, err := env.Configs.Initialize(ctx, configdomain.InitializeParams{
		Owner:          owner,
		SupportedToken: asset,
		Seed:           7,
		PlatformFeeBps: feeBps,
		MinDuration:    30 * 24 * time.Hour,
		MaxDuration:    365 * 24 * time.Hour,
	})
	require.NoError(t, err)
	cfg, err := env.Configs.Get(ctx, configAddr)
	require.NoError(t, err)

	vendorAuth := env.NewWallet(t)
	vendorAddr, err := env.Vendors.InitVendor(ctx, vendordomain.InitVendorParams{
		Authority: vendorAuth,
		Config:    configAddr,
		Seed:      1,
	})
	require.NoError(t, err)
	vendor, err := env.Vendors.Get(ctx, vendorAddr)
	require.NoError(t, err)

	user := env.NewWallet(t)
	env.Mint(t, user, deposited)
	_, err = env.Vaults.InitUser(ctx, user, configAddr)
	require.NoError(t, err)
	require.NoError(t, env.Vaults.Deposit(ctx, user, configAddr, deposited))

	return &flow{
		env:          env,
		owner:        owner,
		config:       configAddr,
		vendorAuth:   vendorAuth,
		vendor:       vendorAddr,
		vendorWallet: vendor.VendorWallet,
		treasury:     cfg.TreasuryWallet,
		user:         user,
	}
}

func (f *flow) subscribe(t *testing.T, amount uint64, n uint8) types.Address {
	t.Helper()
	addr, err := f.env.Subscriptions.InitSubscription(context.Background(), subscription.InitSubscriptionParams{
		User:             f.user,
		Vendor:           f.vendor,
		Seed:             1,
		AmountPerPayment: amount,
		NumberOfPayments: n,
		StartTime:        f.env.Clock.Now(),
	})
	require.NoError(t, err)
	return addr
}

func TestProcessPaymentSplitsFee(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))

	// 500 bps of 100_000_000 is 5_000_000 to the treasury, remainder to the
	// vendor, and the two shares reassemble the full amount.
	assert.Equal(t, uint64(95_000_000), f.env.Balance(t, f.vendorWallet))
	assert.Equal(t, uint64(5_000_000), f.env.Balance(t, f.treasury))

	sub, err := f.env.Subscriptions.Get(ctx, subAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), sub.PaymentsMade)
	assert.Equal(t, types.SubscriptionActive, sub.Status)
}

func TestProcessPaymentFeeExactNearUint64Ceiling(t *testing.T) {
	// The 128-bit intermediate keeps the split exact where a plain uint64
	// product of amount and fee rate would wrap.
	const amount = uint64(2_000_000_000_000_000_000)
	ctx := context.Background()

	t.Run("full fee rate routes everything to the treasury", func(t *testing.T) {
		f := newFlowWithFee(t, amount, 10_000)
		subAddr := f.subscribe(t, amount, 3)

		require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))
		assert.Equal(t, amount, f.env.Balance(t, f.treasury))
		assert.Equal(t, uint64(0), f.env.Balance(t, f.vendorWallet))
	})

	t.Run("500 bps splits exactly", func(t *testing.T) {
		f := newFlowWithFee(t, amount, 500)
		subAddr := f.subscribe(t, amount, 3)

		require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))
		assert.Equal(t, uint64(100_000_000_000_000_000), f.env.Balance(t, f.treasury))
		assert.Equal(t, amount-100_000_000_000_000_000, f.env.Balance(t, f.vendorWallet))
	})
}

func TestProcessPaymentNotDue(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))

	// The next payment is due one interval later; collecting again in the
	// same instant must not move funds.
	err := f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr)
	assert.ErrorIs(t, err, types.ErrScheduleNotDue)
	assert.Equal(t, uint64(95_000_000), f.env.Balance(t, f.vendorWallet))

	sub, err := f.env.Subscriptions.Get(ctx, subAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), sub.PaymentsMade)
}

func TestSubscriptionCompletesAfterFinalPayment(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))
		f.env.Clock.Add(subscription.PaymentInterval)
	}

	sub, err := f.env.Subscriptions.Get(ctx, subAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), sub.PaymentsMade)
	assert.Equal(t, types.SubscriptionCompleted, sub.Status)
	assert.Equal(t, uint64(3*95_000_000), f.env.Balance(t, f.vendorWallet))
	assert.Equal(t, uint64(3*5_000_000), f.env.Balance(t, f.treasury))

	// A completed agreement never collects again, even when time passes.
	err = f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestProcessPaymentRequiresVendorAuthority(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	stranger := f.env.NewWallet(t)
	err := f.env.Subscriptions.ProcessPayment(ctx, stranger, subAddr)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, uint64(0), f.env.Balance(t, f.vendorWallet))
}

func TestProcessPaymentRollsBackOnShortPosition(t *testing.T) {
	// Position only covers half a payment; the collection must fail without
	// paying out a partial vendor share.
	f := newFlow(t, 50_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	err := f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, uint64(0), f.env.Balance(t, f.vendorWallet))
	assert.Equal(t, uint64(0), f.env.Balance(t, f.treasury))

	sub, err := f.env.Subscriptions.Get(ctx, subAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), sub.PaymentsMade)
}

func TestCancelSubscription(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	t.Run("only the subscriber may cancel", func(t *testing.T) {
		err := f.env.Subscriptions.CancelSubscription(ctx, f.vendorAuth, subAddr)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("cancel stops collections", func(t *testing.T) {
		require.NoError(t, f.env.Subscriptions.CancelSubscription(ctx, f.user, subAddr))

		sub, err := f.env.Subscriptions.Get(ctx, subAddr)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionCancelled, sub.Status)

		err = f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr)
		assert.ErrorIs(t, err, types.ErrInvalidState)
	})

	t.Run("cancel is not repeatable", func(t *testing.T) {
		err := f.env.Subscriptions.CancelSubscription(ctx, f.user, subAddr)
		assert.ErrorIs(t, err, types.ErrInvalidState)
	})
}

func TestInitSubscriptionValidation(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()

	valid := subscription.InitSubscriptionParams{
		User:             f.user,
		Vendor:           f.vendor,
		Seed:             1,
		AmountPerPayment: 100_000_000,
		NumberOfPayments: 3,
		StartTime:        f.env.Clock.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(p *subscription.InitSubscriptionParams)
		wantErr error
	}{
		{
			name:    "zero amount",
			mutate:  func(p *subscription.InitSubscriptionParams) { p.AmountPerPayment = 0 },
			wantErr: types.ErrInvalidParameter,
		},
		{
			name:    "zero payments",
			mutate:  func(p *subscription.InitSubscriptionParams) { p.NumberOfPayments = 0 },
			wantErr: types.ErrInvalidParameter,
		},
		{
			name: "contracted span above config maximum",
			mutate: func(p *subscription.InitSubscriptionParams) {
				p.NumberOfPayments = 13 // 390 days, over the 365-day cap
			},
			wantErr: types.ErrInvalidParameter,
		},
		{
			name: "start time more than one interval in the past",
			mutate: func(p *subscription.InitSubscriptionParams) {
				p.StartTime = f.env.Clock.Now().Add(-31 * 24 * time.Hour)
			},
			wantErr: types.ErrInvalidParameter,
		},
		{
			name: "unknown vendor",
			mutate: func(p *subscription.InitSubscriptionParams) {
				p.Vendor = f.env.NewWallet(t)
			},
			wantErr: types.ErrNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)
			_, err := f.env.Subscriptions.InitSubscription(ctx, params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestInitSubscriptionRejectsSecondAgreement(t *testing.T) {
	f := newFlow(t, 400_000_000)
	f.subscribe(t, 100_000_000, 3)

	_, err := f.env.Subscriptions.InitSubscription(context.Background(), subscription.InitSubscriptionParams{
		User:             f.user,
		Vendor:           f.vendor,
		Seed:             2,
		AmountPerPayment: 50_000_000,
		NumberOfPayments: 2,
		StartTime:        f.env.Clock.Now(),
	})
	assert.ErrorIs(t, err, types.ErrDuplicateRecord)
}

func TestProcessPaymentAfterIntervalElapses(t *testing.T) {
	f := newFlow(t, 400_000_000)
	ctx := context.Background()
	subAddr := f.subscribe(t, 100_000_000, 3)

	require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))
	f.env.Clock.Add(subscription.PaymentInterval)
	require.NoError(t, f.env.Subscriptions.ProcessPayment(ctx, f.vendorAuth, subAddr))

	sub, err := f.env.Subscriptions.Get(ctx, subAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), sub.PaymentsMade)
	assert.Equal(t, types.SubscriptionActive, sub.Status)
}
