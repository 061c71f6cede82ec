package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultpay/vaultpay/internal/address"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the Config Registry: one immutable record per supported asset
// and owner, created exactly once.
type Service interface {
	Initialize(ctx context.Context, params InitializeParams) (types.Address, error)
	Get(ctx context.Context, addr types.Address) (*types.Config, error)
}

// InitializeParams carries the owner-signed creation request.
type InitializeParams struct {
	Owner          types.Address // prospective owner; must be the transaction signer
	SupportedToken types.Address
	Seed           uint64
	PlatformFeeBps uint16
	MinDuration    time.Duration
	MaxDuration    time.Duration
}

type ServiceImpl struct {
	logger  *slog.Logger
	store   *store.Store
	deriver *address.Deriver
	repo    Repository
	clock   clock.Clock
}

func NewService(st *store.Store, deriver *address.Deriver, repo Repository, clk clock.Clock, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:  logger,
		store:   st,
		deriver: deriver,
		repo:    repo,
		clock:   clk,
	}
}

// Initialize creates the config record at its derived address together with
// the treasury custody sub-account it owns. Replaying the same seeds is
// rejected as a duplicate.
func (s *ServiceImpl) Initialize(ctx context.Context, params InitializeParams) (types.Address, error) {
	ctx, span := otel.Tracer("ConfigService").Start(ctx, "Initialize", trace.WithAttributes(
		attribute.String("config.owner", params.Owner.String()),
		attribute.String("config.asset", params.SupportedToken.String()),
		attribute.Int("config.fee_bps", int(params.PlatformFeeBps)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Initialize"), slog.String("owner", params.Owner.String()))

	if params.Owner.IsZero() || params.SupportedToken.IsZero() {
		span.SetStatus(codes.Error, "missing identity")
		return types.ZeroAddress, fmt.Errorf("owner and asset are required: %w", types.ErrInvalidParameter)
	}
	if params.PlatformFeeBps > types.MaxFeeBps {
		span.SetStatus(codes.Error, "fee out of range")
		return types.ZeroAddress, fmt.Errorf("fee %d bps exceeds %d: %w", params.PlatformFeeBps, types.MaxFeeBps, types.ErrInvalidParameter)
	}
	if params.MinDuration <= 0 || params.MinDuration > params.MaxDuration {
		span.SetStatus(codes.Error, "duration bounds invalid")
		return types.ZeroAddress, fmt.Errorf("duration bounds [%s, %s]: %w", params.MinDuration, params.MaxDuration, types.ErrInvalidParameter)
	}

	configAddr, bump, err := s.deriver.Derive([]byte(address.TagConfig), params.SupportedToken.Bytes(), params.Owner.Bytes())
	if err != nil {
		span.RecordError(err)
		return types.ZeroAddress, err
	}
	treasuryAddr, _, err := s.deriver.Derive([]byte(address.TagTreasury), configAddr.Bytes())
	if err != nil {
		span.RecordError(err)
		return types.ZeroAddress, err
	}

	cfg := &types.Config{
		Authority:               params.Owner,
		SupportedToken:          params.SupportedToken,
		TreasuryWallet:          treasuryAddr,
		Seed:                    params.Seed,
		PlatformFeeBps:          params.PlatformFeeBps,
		MinSubscriptionDuration: params.MinDuration,
		MaxSubscriptionDuration: params.MaxDuration,
		Bump:                    bump,
		CreatedAt:               s.clock.Now(),
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		if err := s.repo.CreateConfig(ctx, tx, configAddr, cfg); err != nil {
			return err
		}
		return tx.CreateAccount(treasuryAddr, configAddr)
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to initialize config", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize failed")
		return types.ZeroAddress, err
	}

	l.InfoContext(ctx, "config initialized",
		slog.String("config", configAddr.String()),
		slog.String("treasury", treasuryAddr.String()))
	span.SetStatus(codes.Ok, "config initialized")
	return configAddr, nil
}

// Get returns the config record at addr.
func (s *ServiceImpl) Get(ctx context.Context, addr types.Address) (*types.Config, error) {
	ctx, span := otel.Tracer("ConfigService").Start(ctx, "Get")
	defer span.End()

	var cfg *types.Config
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		cfg, err = s.repo.GetConfig(ctx, tx, addr)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cfg, nil
}
