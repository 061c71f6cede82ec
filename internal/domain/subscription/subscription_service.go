package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultpay/vaultpay/internal/address"
	"github.com/vaultpay/vaultpay/internal/metrics"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

// PaymentInterval is the fixed cadence between successive payments. The
// contracted span of a subscription is NumberOfPayments times this interval
// and must fall inside the config's duration bounds at creation.
const PaymentInterval = 30 * 24 * time.Hour

var _ Service = (*ServiceImpl)(nil)

// VendorRepository is the slice of the vendor registry this package needs.
type VendorRepository interface {
	GetVendor(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Vendor, error)
}

// ConfigRepository is the slice of the config registry this package needs.
type ConfigRepository interface {
	GetConfig(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Config, error)
}

// VaultGateway releases funds from a user's yield position under the vault
// authority's credential, inside the caller's unit of work.
type VaultGateway interface {
	ReleaseFromPosition(ctx context.Context, tx *store.Tx, configAddr, user, to types.Address, amount uint64) error
}

// Service creates, advances and terminates recurring-payment agreements.
type Service interface {
	InitSubscription(ctx context.Context, params InitSubscriptionParams) (types.Address, error)
	ProcessPayment(ctx context.Context, caller, subscriptionAddr types.Address) error
	CancelSubscription(ctx context.Context, caller, subscriptionAddr types.Address) error
	Get(ctx context.Context, addr types.Address) (*types.Subscription, error)
}

// InitSubscriptionParams carries the user-signed creation request.
type InitSubscriptionParams struct {
	User             types.Address // must be the transaction signer
	Vendor           types.Address
	Seed             uint64
	AmountPerPayment uint64
	NumberOfPayments uint8
	StartTime        time.Time
}

type ServiceImpl struct {
	logger  *slog.Logger
	store   *store.Store
	deriver *address.Deriver
	repo    Repository
	vendors VendorRepository
	configs ConfigRepository
	vaults  VaultGateway
	clock   clock.Clock
}

func NewService(st *store.Store, deriver *address.Deriver, repo Repository, vendors VendorRepository, configs ConfigRepository, vaults VaultGateway, clk clock.Clock, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:  logger,
		store:   st,
		deriver: deriver,
		repo:    repo,
		vendors: vendors,
		configs: configs,
		vaults:  vaults,
		clock:   clk,
	}
}

// InitSubscription creates an Active agreement between the calling user and
// a registered vendor. The contracted span must fit the config's duration
// bounds, and one (vendor, user) pair can hold at most one agreement.
func (s *ServiceImpl) InitSubscription(ctx context.Context, params InitSubscriptionParams) (types.Address, error) {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "InitSubscription", trace.WithAttributes(
		attribute.String("user", params.User.String()),
		attribute.String("vendor", params.Vendor.String()),
		attribute.Int64("amount_per_payment", int64(params.AmountPerPayment)),
		attribute.Int("number_of_payments", int(params.NumberOfPayments)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "InitSubscription"), slog.String("user", params.User.String()))

	if params.User.IsZero() {
		span.SetStatus(codes.Error, "missing user")
		return types.ZeroAddress, fmt.Errorf("user is required: %w", types.ErrInvalidParameter)
	}
	if params.AmountPerPayment == 0 {
		span.SetStatus(codes.Error, "zero amount")
		return types.ZeroAddress, fmt.Errorf("amount per payment must be positive: %w", types.ErrInvalidParameter)
	}
	if params.NumberOfPayments == 0 {
		span.SetStatus(codes.Error, "zero payments")
		return types.ZeroAddress, fmt.Errorf("number of payments must be positive: %w", types.ErrInvalidParameter)
	}
	if params.StartTime.Before(s.clock.Now().Add(-PaymentInterval)) {
		span.SetStatus(codes.Error, "stale start time")
		return types.ZeroAddress, fmt.Errorf("start time %s is more than one interval in the past: %w", params.StartTime, types.ErrInvalidParameter)
	}

	subAddr, bump, err := s.deriver.Derive([]byte(address.TagSubscription), params.Vendor.Bytes(), params.User.Bytes())
	if err != nil {
		span.RecordError(err)
		return types.ZeroAddress, err
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		vendor, err := s.vendors.GetVendor(ctx, tx, params.Vendor)
		if err != nil {
			return err
		}
		cfg, err := s.configs.GetConfig(ctx, tx, vendor.Config)
		if err != nil {
			return err
		}
		contracted := time.Duration(params.NumberOfPayments) * PaymentInterval
		if contracted < cfg.MinSubscriptionDuration || contracted > cfg.MaxSubscriptionDuration {
			return fmt.Errorf("contracted span %s outside [%s, %s]: %w",
				contracted, cfg.MinSubscriptionDuration, cfg.MaxSubscriptionDuration, types.ErrInvalidParameter)
		}
		return s.repo.CreateSubscription(ctx, tx, subAddr, &types.Subscription{
			Authority:        params.User,
			Vendor:           params.Vendor,
			User:             params.User,
			Seed:             params.Seed,
			AmountPerPayment: params.AmountPerPayment,
			NumberOfPayments: params.NumberOfPayments,
			StartTime:        params.StartTime,
			Status:           types.SubscriptionActive,
			Bump:             bump,
		})
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to create subscription", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return types.ZeroAddress, err
	}

	metrics.SubscriptionsActive.Inc()
	l.InfoContext(ctx, "subscription created", slog.String("subscription", subAddr.String()))
	span.SetStatus(codes.Ok, "subscription created")
	return subAddr, nil
}

// ProcessPayment collects the next due payment: the user's yield position is
// debited under the vault authority, the platform fee goes to the treasury,
// the remainder to the vendor, and the schedule advances — all in one unit
// of work. Only the vendor authority named on the agreement may collect.
func (s *ServiceImpl) ProcessPayment(ctx context.Context, caller, subscriptionAddr types.Address) error {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "ProcessPayment", trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.String("subscription", subscriptionAddr.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ProcessPayment"), slog.String("subscription", subscriptionAddr.String()))

	var (
		fee         uint64
		vendorShare uint64
		completed   bool
	)
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		sub, err := s.repo.GetSubscription(ctx, tx, subscriptionAddr)
		if err != nil {
			return err
		}
		if sub.Status.Terminal() {
			return fmt.Errorf("subscription is %s: %w", sub.Status, types.ErrInvalidState)
		}
		vendor, err := s.vendors.GetVendor(ctx, tx, sub.Vendor)
		if err != nil {
			return err
		}
		if !vendor.Authority.Equal(caller) {
			return fmt.Errorf("caller is not the vendor authority: %w", types.ErrUnauthorized)
		}
		cfg, err := s.configs.GetConfig(ctx, tx, vendor.Config)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if due := sub.NextPaymentDue(PaymentInterval); now.Before(due) {
			return fmt.Errorf("payment %d due at %s: %w", sub.PaymentsMade+1, due, types.ErrScheduleNotDue)
		}

		fee = feeFor(sub.AmountPerPayment, cfg.PlatformFeeBps)
		vendorShare = sub.AmountPerPayment - fee

		if vendorShare > 0 {
			if err := s.vaults.ReleaseFromPosition(ctx, tx, vendor.Config, sub.User, vendor.VendorWallet, vendorShare); err != nil {
				return err
			}
		}
		if fee > 0 {
			if err := s.vaults.ReleaseFromPosition(ctx, tx, vendor.Config, sub.User, cfg.TreasuryWallet, fee); err != nil {
				return err
			}
		}

		sub.PaymentsMade++
		if sub.PaymentsMade >= sub.NumberOfPayments {
			sub.Status = types.SubscriptionCompleted
			completed = true
		}
		return s.repo.UpdateSubscription(ctx, tx, subscriptionAddr, sub)
	})
	if err != nil {
		metrics.PaymentsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		l.ErrorContext(ctx, "payment rejected", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment rejected")
		return err
	}

	metrics.PaymentsProcessedTotal.Inc()
	metrics.FeesCollectedTotal.Add(float64(fee))
	metrics.VendorPayoutsTotal.Add(float64(vendorShare))
	if completed {
		metrics.SubscriptionsActive.Dec()
	}
	l.InfoContext(ctx, "payment processed",
		slog.Uint64("fee", fee),
		slog.Uint64("vendor_share", vendorShare),
		slog.Bool("completed", completed))
	span.SetStatus(codes.Ok, "payment processed")
	return nil
}

// CancelSubscription stops all future collections. Only the user may cancel,
// only from the Active state, and no funds move. Repeat calls fail.
func (s *ServiceImpl) CancelSubscription(ctx context.Context, caller, subscriptionAddr types.Address) error {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "CancelSubscription", trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.String("subscription", subscriptionAddr.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CancelSubscription"), slog.String("subscription", subscriptionAddr.String()))

	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		sub, err := s.repo.GetSubscription(ctx, tx, subscriptionAddr)
		if err != nil {
			return err
		}
		if !sub.User.Equal(caller) {
			return fmt.Errorf("caller is not the subscriber: %w", types.ErrUnauthorized)
		}
		if sub.Status.Terminal() {
			return fmt.Errorf("subscription is %s: %w", sub.Status, types.ErrInvalidState)
		}
		sub.Status = types.SubscriptionCancelled
		return s.repo.UpdateSubscription(ctx, tx, subscriptionAddr, sub)
	})
	if err != nil {
		l.ErrorContext(ctx, "cancel rejected", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel rejected")
		return err
	}

	metrics.SubscriptionsActive.Dec()
	l.InfoContext(ctx, "subscription cancelled")
	span.SetStatus(codes.Ok, "subscription cancelled")
	return nil
}

// Get returns the subscription record at addr.
func (s *ServiceImpl) Get(ctx context.Context, addr types.Address) (*types.Subscription, error) {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "Get")
	defer span.End()

	var sub *types.Subscription
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		sub, err = s.repo.GetSubscription(ctx, tx, addr)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sub, nil
}

// feeFor computes floor(amount × feeBps / 10000) with a 128-bit intermediate
// product, so the split stays exact for amounts near the uint64 ceiling.
func feeFor(amount uint64, feeBps uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(feeBps))
	fee, _ := bits.Div64(hi, lo, types.MaxFeeBps)
	return fee
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, types.ErrScheduleNotDue):
		return "not_due"
	case errors.Is(err, types.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, types.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrExternalFailure):
		return "external_failure"
	default:
		return "other"
	}
}
