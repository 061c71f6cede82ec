// Package yield is the in-process stand-in for the external yield-bearing
// reserve service. The protocol core only ever sees the four capabilities of
// the collaborator contract: open a position, deposit into it, withdraw from
// it with an authority signature, and read its balance. Accrual bookkeeping
// is this package's own concern and invisible to the core.
package yield

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vaultpay/vaultpay/internal/address"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

// Reserve is the per-asset pool that pays out accrued yield.
type Reserve struct {
	Authority      types.Address
	TokenMint      types.Address
	ReserveAccount types.Address // custody funding yield payouts
	APY            float64
	Bump           uint8
}

// Position tracks one owner's deposits and unclaimed accrued yield.
type Position struct {
	Authority       types.Address // withdraw authority registered at open
	Reserve         types.Address
	TokenMint       types.Address
	TokenAccount    types.Address // custody holding principal plus paid-out yield
	DepositedAmount uint64
	UnclaimedYield  uint64
	LastUpdate      time.Time
	Bump            uint8
}

// AuthoritySignature authorizes releasing funds from a position. The proof is
// issued once, when the position is opened, to whoever opened it; the source
// never reissues it, which is what makes it a capability rather than an ACL
// entry.
type AuthoritySignature struct {
	Authority types.Address
	Proof     []byte
}

// MockSource implements the collaborator contract against the shared arena.
type MockSource struct {
	logger  *slog.Logger
	deriver *address.Deriver
	clock   clock.Clock
	secret  []byte
}

func NewMockSource(deriver *address.Deriver, clk clock.Clock, logger *slog.Logger) (*MockSource, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating credential secret: %w", err)
	}
	return &MockSource{
		logger:  logger,
		deriver: deriver,
		clock:   clk,
		secret:  secret,
	}, nil
}

// InitializeReserve creates the per-asset reserve and funds its payout
// custody from the authority's own account.
func (s *MockSource) InitializeReserve(tx *store.Tx, authority, asset types.Address, apy float64, initialDeposit uint64) (types.Address, error) {
	if apy < 0 {
		return types.ZeroAddress, fmt.Errorf("apy %f: %w", apy, types.ErrInvalidParameter)
	}
	reserveAddr, bump, err := s.deriver.Derive([]byte(address.TagYieldReserve), asset.Bytes())
	if err != nil {
		return types.ZeroAddress, err
	}
	reserveWallet, _, err := s.deriver.Derive([]byte(address.TagYieldReserve), reserveAddr.Bytes(), []byte("wallet"))
	if err != nil {
		return types.ZeroAddress, err
	}
	if err := tx.CreateRecord(reserveAddr, &Reserve{
		Authority:      authority,
		TokenMint:      asset,
		ReserveAccount: reserveWallet,
		APY:            apy,
		Bump:           bump,
	}); err != nil {
		return types.ZeroAddress, err
	}
	if err := tx.CreateAccount(reserveWallet, reserveAddr); err != nil {
		return types.ZeroAddress, err
	}
	if initialDeposit > 0 {
		if err := tx.Transfer(authority, reserveWallet, initialDeposit); err != nil {
			return types.ZeroAddress, err
		}
	}
	s.logger.Info("yield reserve initialized",
		slog.String("reserve", reserveAddr.String()),
		slog.String("asset", asset.String()),
		slog.Float64("apy", apy))
	return reserveAddr, nil
}

// OpenPosition opens a position owned by the given withdraw authority and
// returns its handle together with the one-time withdrawal credential.
func (s *MockSource) OpenPosition(tx *store.Tx, authority, asset types.Address) (types.Address, []byte, error) {
	reserveAddr, _, err := s.deriver.Derive([]byte(address.TagYieldReserve), asset.Bytes())
	if err != nil {
		return types.ZeroAddress, nil, err
	}
	if _, err := s.reserve(tx, reserveAddr); err != nil {
		return types.ZeroAddress, nil, err
	}

	posAddr, bump, err := s.deriver.Derive([]byte(address.TagYieldAccount), reserveAddr.Bytes(), authority.Bytes())
	if err != nil {
		return types.ZeroAddress, nil, err
	}
	posWallet, _, err := s.deriver.Derive([]byte(address.TagYieldAccount), posAddr.Bytes(), []byte("wallet"))
	if err != nil {
		return types.ZeroAddress, nil, err
	}
	if err := tx.CreateRecord(posAddr, &Position{
		Authority:    authority,
		Reserve:      reserveAddr,
		TokenMint:    asset,
		TokenAccount: posWallet,
		LastUpdate:   s.clock.Now(),
		Bump:         bump,
	}); err != nil {
		return types.ZeroAddress, nil, err
	}
	if err := tx.CreateAccount(posWallet, posAddr); err != nil {
		return types.ZeroAddress, nil, err
	}
	return posAddr, s.credentialFor(posAddr, authority), nil
}

// Deposit accrues outstanding yield, then moves amount from the caller's
// custody into the position.
func (s *MockSource) Deposit(tx *store.Tx, position, from types.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("deposit amount must be positive: %w", types.ErrInvalidParameter)
	}
	pos, err := s.position(tx, position)
	if err != nil {
		return err
	}
	if err := s.accrue(tx, pos); err != nil {
		return err
	}
	if err := tx.Transfer(from, pos.TokenAccount, amount); err != nil {
		return err
	}
	pos.DepositedAmount += amount
	return tx.PutRecord(position, pos)
}

// Withdraw verifies the authority signature, accrues, and releases amount to
// the destination custody account. Unclaimed yield is consumed before
// principal, matching the position custody which holds both.
func (s *MockSource) Withdraw(tx *store.Tx, position types.Address, sig AuthoritySignature, to types.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("withdraw amount must be positive: %w", types.ErrInvalidParameter)
	}
	pos, err := s.position(tx, position)
	if err != nil {
		return err
	}
	if !pos.Authority.Equal(sig.Authority) || !hmac.Equal(sig.Proof, s.credentialFor(position, pos.Authority)) {
		return fmt.Errorf("withdraw authority rejected for position %s: %w", position, types.ErrUnauthorized)
	}
	if err := s.accrue(tx, pos); err != nil {
		return err
	}
	if available := pos.UnclaimedYield + pos.DepositedAmount; available < amount {
		return fmt.Errorf("position holds %d < %d: %w", available, amount, types.ErrInsufficientFunds)
	}
	if err := tx.Transfer(pos.TokenAccount, to, amount); err != nil {
		return err
	}
	fromYield := min(amount, pos.UnclaimedYield)
	pos.UnclaimedYield -= fromYield
	pos.DepositedAmount -= amount - fromYield
	return tx.PutRecord(position, pos)
}

// PositionBalance reports principal and accrued yield as of now, without
// settling the accrual.
func (s *MockSource) PositionBalance(tx *store.Tx, position types.Address) (principal, accrued uint64, err error) {
	pos, err := s.position(tx, position)
	if err != nil {
		return 0, 0, err
	}
	return pos.DepositedAmount, pos.UnclaimedYield + s.projectedYield(tx, pos), nil
}

// accrue settles compound yield since the last update, paid from the reserve
// custody into the position custody.
func (s *MockSource) accrue(tx *store.Tx, pos *Position) error {
	now := s.clock.Now()
	newYield := s.yieldSince(tx, pos, now)
	if newYield > 0 {
		reserve, err := s.reserve(tx, pos.Reserve)
		if err != nil {
			return err
		}
		if err := tx.Transfer(reserve.ReserveAccount, pos.TokenAccount, newYield); err != nil {
			return err
		}
		pos.UnclaimedYield += newYield
	}
	pos.LastUpdate = now
	return nil
}

func (s *MockSource) projectedYield(tx *store.Tx, pos *Position) uint64 {
	return s.yieldSince(tx, pos, s.clock.Now())
}

func (s *MockSource) yieldSince(tx *store.Tx, pos *Position, now time.Time) uint64 {
	reserve, err := s.reserve(tx, pos.Reserve)
	if err != nil {
		return 0
	}
	elapsed := now.Sub(pos.LastUpdate).Seconds() / (365 * 24 * 60 * 60)
	if elapsed <= 0 {
		return 0
	}
	rate := math.Pow(1+reserve.APY, elapsed) - 1
	return uint64(float64(pos.DepositedAmount) * rate)
}

func (s *MockSource) reserve(tx *store.Tx, addr types.Address) (*Reserve, error) {
	rec, err := tx.GetRecord(addr)
	if err != nil {
		return nil, err
	}
	reserve, ok := rec.(*Reserve)
	if !ok {
		return nil, fmt.Errorf("record at %s is not a yield reserve: %w", addr, types.ErrNotFound)
	}
	cp := *reserve // copy so staged mutations never touch committed state
	return &cp, nil
}

func (s *MockSource) position(tx *store.Tx, addr types.Address) (*Position, error) {
	rec, err := tx.GetRecord(addr)
	if err != nil {
		return nil, err
	}
	pos, ok := rec.(*Position)
	if !ok {
		return nil, fmt.Errorf("record at %s is not a yield position: %w", addr, types.ErrNotFound)
	}
	cp := *pos
	return &cp, nil
}

func (s *MockSource) credentialFor(position, authority types.Address) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("withdraw"))
	mac.Write(position.Bytes())
	mac.Write(authority.Bytes())
	return mac.Sum(nil)
}
