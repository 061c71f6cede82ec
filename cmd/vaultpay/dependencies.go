package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultpay/vaultpay/internal/address"
	configdomain "github.com/vaultpay/vaultpay/internal/domain/config"
	"github.com/vaultpay/vaultpay/internal/domain/subscription"
	"github.com/vaultpay/vaultpay/internal/domain/treasury"
	"github.com/vaultpay/vaultpay/internal/domain/vault"
	vendordomain "github.com/vaultpay/vaultpay/internal/domain/vendor"
	"github.com/vaultpay/vaultpay/internal/metrics"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
	"github.com/vaultpay/vaultpay/internal/yield"
	"github.com/vaultpay/vaultpay/pkg/config"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Deriver  *address.Deriver
	Clock    clock.Clock
	Registry *prometheus.Registry

	YieldSource *yield.MockSource

	// Repositories
	ConfigRepo       *configdomain.RepositoryImpl
	VendorRepo       *vendordomain.RepositoryImpl
	VaultRepo        *vault.RepositoryImpl
	SubscriptionRepo *subscription.RepositoryImpl

	// Services
	ConfigService       configdomain.Service
	VendorService       vendordomain.Service
	VaultService        *vault.ServiceImpl
	SubscriptionService subscription.Service
	TreasuryService     treasury.Service
}

// InitDependencies wires the protocol graph: arena, deriver, mock yield
// source, then repositories and services per domain.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Clock:    clock.New(),
		Deriver:  address.NewDeriver(),
		Registry: prometheus.NewRegistry(),
	}
	deps.Store = store.New(logger)
	metrics.Register(deps.Registry)

	source, err := yield.NewMockSource(deps.Deriver, deps.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init yield source: %w", err)
	}
	deps.YieldSource = source

	deps.ConfigRepo = configdomain.NewRepositoryImpl(logger)
	deps.VendorRepo = vendordomain.NewRepositoryImpl(logger)
	deps.VaultRepo = vault.NewRepositoryImpl(logger)
	deps.SubscriptionRepo = subscription.NewRepositoryImpl(logger)

	deps.ConfigService = configdomain.NewService(deps.Store, deps.Deriver, deps.ConfigRepo, deps.Clock, logger)
	deps.VendorService = vendordomain.NewService(deps.Store, deps.Deriver, deps.VendorRepo, deps.ConfigRepo, logger)
	deps.VaultService = vault.NewService(deps.Store, deps.Deriver, deps.VaultRepo, deps.ConfigRepo, deps.YieldSource, logger)
	deps.SubscriptionService = subscription.NewService(
		deps.Store, deps.Deriver, deps.SubscriptionRepo,
		deps.VendorRepo, deps.ConfigRepo, deps.VaultService,
		deps.Clock, logger,
	)
	deps.TreasuryService = treasury.NewService(deps.Store, deps.ConfigRepo, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Bootstrap seeds a fresh arena: it funds the mock yield reserve and creates
// the default protocol config from the environment settings.
func (d *Dependencies) Bootstrap(ctx context.Context) error {
	operator, err := types.NewWalletAddress()
	if err != nil {
		return err
	}
	asset, err := types.NewWalletAddress()
	if err != nil {
		return err
	}

	err = d.Store.Atomic(ctx, func(tx *store.Tx) error {
		if err := tx.CreateAccount(operator, operator); err != nil {
			return err
		}
		if err := tx.Credit(operator, d.Config.Yield.ReserveFunding); err != nil {
			return err
		}
		_, err := d.YieldSource.InitializeReserve(tx, operator, asset, d.Config.Yield.APY, d.Config.Yield.ReserveFunding)
		return err
	})
	if err != nil {
		return fmt.Errorf("bootstrapping yield reserve: %w", err)
	}

	configAddr, err := d.ConfigService.Initialize(ctx, configdomain.InitializeParams{
		Owner:          operator,
		SupportedToken: asset,
		PlatformFeeBps: d.Config.Default.PlatformFeeBps,
		MinDuration:    d.Config.Default.MinDuration,
		MaxDuration:    d.Config.Default.MaxDuration,
	})
	if err != nil {
		return fmt.Errorf("bootstrapping default config: %w", err)
	}

	d.Logger.Info("arena bootstrapped",
		"config", configAddr.String(),
		"asset", asset.String(),
		"reserve_funding", d.Config.Yield.ReserveFunding)
	return nil
}
