package treasury

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultpay/vaultpay/internal/metrics"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// ConfigRepository is the slice of the config registry this package needs.
type ConfigRepository interface {
	GetConfig(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Config, error)
}

// Service lets the config owner withdraw accumulated platform fees.
type Service interface {
	Claim(ctx context.Context, caller, configAddr types.Address, amount uint64) error
	Balance(ctx context.Context, configAddr types.Address) (uint64, error)
}

type ServiceImpl struct {
	logger  *slog.Logger
	store   *store.Store
	configs ConfigRepository
}

func NewService(st *store.Store, configs ConfigRepository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:  logger,
		store:   st,
		configs: configs,
	}
}

// Claim transfers an explicit amount from the treasury custody to the
// owner's own account. Only the config owner may claim.
func (s *ServiceImpl) Claim(ctx context.Context, caller, configAddr types.Address, amount uint64) error {
	ctx, span := otel.Tracer("TreasuryService").Start(ctx, "Claim", trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.String("config", configAddr.String()),
		attribute.Int64("amount", int64(amount)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Claim"), slog.String("config", configAddr.String()))

	if amount == 0 {
		span.SetStatus(codes.Error, "zero amount")
		return fmt.Errorf("claim amount must be positive: %w", types.ErrInvalidParameter)
	}

	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		cfg, err := s.configs.GetConfig(ctx, tx, configAddr)
		if err != nil {
			return err
		}
		if !cfg.Authority.Equal(caller) {
			return fmt.Errorf("caller is not the config owner: %w", types.ErrUnauthorized)
		}
		return tx.Transfer(cfg.TreasuryWallet, caller, amount)
	})
	if err != nil {
		l.ErrorContext(ctx, "treasury claim rejected", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim rejected")
		return err
	}

	metrics.TreasuryClaimsTotal.Inc()
	l.InfoContext(ctx, "treasury claimed", slog.Uint64("amount", amount))
	span.SetStatus(codes.Ok, "treasury claimed")
	return nil
}

// Balance reports the current treasury custody balance for a config.
func (s *ServiceImpl) Balance(ctx context.Context, configAddr types.Address) (uint64, error) {
	ctx, span := otel.Tracer("TreasuryService").Start(ctx, "Balance")
	defer span.End()

	var balance uint64
	err := s.store.View(ctx, func(tx *store.Tx) error {
		cfg, err := s.configs.GetConfig(ctx, tx, configAddr)
		if err != nil {
			return err
		}
		balance, err = tx.Balance(cfg.TreasuryWallet)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return balance, nil
}
