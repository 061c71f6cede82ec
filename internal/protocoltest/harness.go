// Package protocoltest wires a full in-process protocol environment for
// tests: arena, deriver, mock yield source with a controllable clock, and
// every domain service.
package protocoltest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vaultpay/vaultpay/internal/address"
	configdomain "github.com/vaultpay/vaultpay/internal/domain/config"
	"github.com/vaultpay/vaultpay/internal/domain/subscription"
	"github.com/vaultpay/vaultpay/internal/domain/treasury"
	"github.com/vaultpay/vaultpay/internal/domain/vault"
	vendordomain "github.com/vaultpay/vaultpay/internal/domain/vendor"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
	"github.com/vaultpay/vaultpay/internal/yield"
)

// Env is a fully wired protocol instance backed by a mock clock.
type Env struct {
	Store   *store.Store
	Deriver *address.Deriver
	Clock   *clock.Mock
	Source  *yield.MockSource

	ConfigRepo *configdomain.RepositoryImpl

	Configs       configdomain.Service
	Vendors       vendordomain.Service
	Vaults        *vault.ServiceImpl
	Subscriptions subscription.Service
	Treasury      treasury.Service
}

// New builds an Env with the clock pinned to a fixed instant.
func New(t *testing.T) *Env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))

	deriver := address.NewDeriver()
	st := store.New(logger)

	source, err := yield.NewMockSource(deriver, mockClock, logger)
	require.NoError(t, err)

	configRepo := configdomain.NewRepositoryImpl(logger)
	vendorRepo := vendordomain.NewRepositoryImpl(logger)
	vaultRepo := vault.NewRepositoryImpl(logger)
	subRepo := subscription.NewRepositoryImpl(logger)

	vaultSvc := vault.NewService(st, deriver, vaultRepo, configRepo, source, logger)

	return &Env{
		Store:      st,
		Deriver:    deriver,
		Clock:      mockClock,
		Source:     source,
		ConfigRepo: configRepo,
		Configs:    configdomain.NewService(st, deriver, configRepo, mockClock, logger),
		Vendors:    vendordomain.NewService(st, deriver, vendorRepo, configRepo, logger),
		Vaults:     vaultSvc,
		Subscriptions: subscription.NewService(
			st, deriver, subRepo, vendorRepo, configRepo, vaultSvc, mockClock, logger,
		),
		Treasury: treasury.NewService(st, configRepo, logger),
	}
}

// NewWallet returns a fresh externally-ownable address with an empty custody
// account.
func (e *Env) NewWallet(t *testing.T) types.Address {
	t.Helper()
	addr, err := types.NewWalletAddress()
	require.NoError(t, err)
	err = e.Store.Atomic(context.Background(), func(tx *store.Tx) error {
		return tx.CreateAccount(addr, addr)
	})
	require.NoError(t, err)
	return addr
}

// Mint credits amount to addr, creating the custody account if needed. This
// stands in for the host environment's token issuance.
func (e *Env) Mint(t *testing.T, addr types.Address, amount uint64) {
	t.Helper()
	err := e.Store.Atomic(context.Background(), func(tx *store.Tx) error {
		if !tx.HasAccount(addr) {
			if err := tx.CreateAccount(addr, addr); err != nil {
				return err
			}
		}
		return tx.Credit(addr, amount)
	})
	require.NoError(t, err)
}

// Balance reads the committed custody balance at addr.
func (e *Env) Balance(t *testing.T, addr types.Address) uint64 {
	t.Helper()
	var balance uint64
	err := e.Store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		balance, err = tx.Balance(addr)
		return err
	})
	require.NoError(t, err)
	return balance
}

// InitReserve funds an operator wallet and opens the yield reserve for asset.
func (e *Env) InitReserve(t *testing.T, asset types.Address, apy float64, funding uint64) types.Address {
	t.Helper()
	operator := e.NewWallet(t)
	e.Mint(t, operator, funding)
	var reserveAddr types.Address
	err := e.Store.Atomic(context.Background(), func(tx *store.Tx) error {
		var err error
		reserveAddr, err = e.Source.InitializeReserve(tx, operator, asset, apy, funding)
		return err
	})
	require.NoError(t, err)
	return reserveAddr
}

// Asset returns a fresh asset identifier.
func (e *Env) Asset(t *testing.T) types.Address {
	t.Helper()
	addr, err := types.NewWalletAddress()
	require.NoError(t, err)
	return addr
}
