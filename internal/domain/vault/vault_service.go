package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultpay/vaultpay/internal/address"
	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
	"github.com/vaultpay/vaultpay/internal/yield"
)

var _ Service = (*ServiceImpl)(nil)

// YieldSource is the slice of the external collaborator contract the vault
// manager consumes. Every call is a single blocking round trip with a binary
// outcome; partial effects are rolled back by the enclosing unit of work.
type YieldSource interface {
	OpenPosition(tx *store.Tx, authority, asset types.Address) (types.Address, []byte, error)
	Deposit(tx *store.Tx, position, from types.Address, amount uint64) error
	Withdraw(tx *store.Tx, position types.Address, sig yield.AuthoritySignature, to types.Address, amount uint64) error
	PositionBalance(tx *store.Tx, position types.Address) (uint64, uint64, error)
}

// ConfigRepository is the slice of the config registry this package needs.
type ConfigRepository interface {
	GetConfig(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Config, error)
}

// Service custodies user funds inside yield positions owned by keyless vault
// authorities the protocol alone controls.
type Service interface {
	InitUser(ctx context.Context, caller, configAddr types.Address) (types.Address, error)
	Deposit(ctx context.Context, caller, configAddr types.Address, amount uint64) error
	Withdraw(ctx context.Context, caller, configAddr types.Address, amount uint64) error
	Position(ctx context.Context, user, configAddr types.Address) (principal, accrued uint64, err error)
}

type ServiceImpl struct {
	logger  *slog.Logger
	store   *store.Store
	deriver *address.Deriver
	repo    Repository
	configs ConfigRepository
	source  YieldSource
}

func NewService(st *store.Store, deriver *address.Deriver, repo Repository, configs ConfigRepository, source YieldSource, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:  logger,
		store:   st,
		deriver: deriver,
		repo:    repo,
		configs: configs,
		source:  source,
	}
}

// InitUser derives the caller's vault authority, opens a yield position
// owned by it, and opens the custody sub-account transfers are staged
// through. The withdrawal credential issued by the yield source is stored on
// the authority record and never exposed to callers.
func (s *ServiceImpl) InitUser(ctx context.Context, caller, configAddr types.Address) (types.Address, error) {
	ctx, span := otel.Tracer("VaultService").Start(ctx, "InitUser", trace.WithAttributes(
		attribute.String("user", caller.String()),
		attribute.String("config", configAddr.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "InitUser"), slog.String("user", caller.String()))

	if caller.IsZero() {
		span.SetStatus(codes.Error, "missing caller")
		return types.ZeroAddress, fmt.Errorf("caller is required: %w", types.ErrInvalidParameter)
	}

	authorityAddr, bump, err := s.deriver.Derive([]byte(address.TagVaultAuthority), configAddr.Bytes(), caller.Bytes())
	if err != nil {
		span.RecordError(err)
		return types.ZeroAddress, err
	}
	walletAddr, _, err := s.deriver.Derive([]byte(address.TagVaultAuthority), authorityAddr.Bytes(), []byte("wallet"))
	if err != nil {
		span.RecordError(err)
		return types.ZeroAddress, err
	}

	err = s.store.Atomic(ctx, func(tx *store.Tx) error {
		cfg, err := s.configs.GetConfig(ctx, tx, configAddr)
		if err != nil {
			return err
		}
		position, credential, err := s.source.OpenPosition(tx, authorityAddr, cfg.SupportedToken)
		if err != nil {
			return wrapExternal(err)
		}
		if err := tx.CreateAccount(walletAddr, authorityAddr); err != nil {
			return err
		}
		return s.repo.CreateAuthority(ctx, tx, authorityAddr, &types.VaultAuthority{
			User:       caller,
			Config:     configAddr,
			Position:   position,
			Wallet:     walletAddr,
			Credential: credential,
			Bump:       bump,
		})
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to open user vault", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "init user failed")
		return types.ZeroAddress, err
	}

	l.InfoContext(ctx, "user vault opened", slog.String("authority", authorityAddr.String()))
	span.SetStatus(codes.Ok, "user vault opened")
	return authorityAddr, nil
}

// Deposit moves amount from the caller's own custody into their yield
// position. The user funds their own position directly, so the transfer out
// of their custody is signed by them, not by the vault authority.
func (s *ServiceImpl) Deposit(ctx context.Context, caller, configAddr types.Address, amount uint64) error {
	ctx, span := otel.Tracer("VaultService").Start(ctx, "Deposit", trace.WithAttributes(
		attribute.String("user", caller.String()),
		attribute.Int64("amount", int64(amount)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Deposit"), slog.String("user", caller.String()))

	if amount == 0 {
		span.SetStatus(codes.Error, "zero amount")
		return fmt.Errorf("deposit amount must be positive: %w", types.ErrInvalidParameter)
	}

	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		_, auth, err := s.authorityFor(ctx, tx, configAddr, caller)
		if err != nil {
			return err
		}
		if err := tx.Transfer(caller, auth.Wallet, amount); err != nil {
			return err
		}
		if err := s.source.Deposit(tx, auth.Position, auth.Wallet, amount); err != nil {
			return wrapExternal(err)
		}
		return nil
	})
	if err != nil {
		l.ErrorContext(ctx, "deposit failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "deposit failed")
		return err
	}

	l.InfoContext(ctx, "deposit completed", slog.Uint64("amount", amount))
	span.SetStatus(codes.Ok, "deposit completed")
	return nil
}

// Withdraw releases amount of principal back to the caller's own custody.
// The vault authority, not the user, signs the yield-source release; that
// indirection is what lets payment processing debit the same position later
// without the user's live signature.
func (s *ServiceImpl) Withdraw(ctx context.Context, caller, configAddr types.Address, amount uint64) error {
	ctx, span := otel.Tracer("VaultService").Start(ctx, "Withdraw", trace.WithAttributes(
		attribute.String("user", caller.String()),
		attribute.Int64("amount", int64(amount)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Withdraw"), slog.String("user", caller.String()))

	if amount == 0 {
		span.SetStatus(codes.Error, "zero amount")
		return fmt.Errorf("withdraw amount must be positive: %w", types.ErrInvalidParameter)
	}

	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		authAddr, auth, err := s.authorityFor(ctx, tx, configAddr, caller)
		if err != nil {
			return err
		}
		sig := yield.AuthoritySignature{Authority: authAddr, Proof: auth.Credential}
		if err := s.source.Withdraw(tx, auth.Position, sig, auth.Wallet, amount); err != nil {
			return wrapExternal(err)
		}
		return tx.Transfer(auth.Wallet, caller, amount)
	})
	if err != nil {
		l.ErrorContext(ctx, "withdraw failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdraw failed")
		return err
	}

	l.InfoContext(ctx, "withdraw completed", slog.Uint64("amount", amount))
	span.SetStatus(codes.Ok, "withdraw completed")
	return nil
}

// Position reports the principal and accrued yield of the user's position.
func (s *ServiceImpl) Position(ctx context.Context, user, configAddr types.Address) (principal, accrued uint64, err error) {
	ctx, span := otel.Tracer("VaultService").Start(ctx, "Position")
	defer span.End()

	err = s.store.View(ctx, func(tx *store.Tx) error {
		_, auth, err := s.authorityFor(ctx, tx, configAddr, user)
		if err != nil {
			return err
		}
		principal, accrued, err = s.source.PositionBalance(tx, auth.Position)
		return wrapExternal(err)
	})
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}
	return principal, accrued, nil
}

// ReleaseFromPosition presents the vault authority credential to the yield
// source inside an already-open unit of work. Only protocol code paths can
// reach it; callers never see the credential.
func (s *ServiceImpl) ReleaseFromPosition(ctx context.Context, tx *store.Tx, configAddr, user, to types.Address, amount uint64) error {
	authAddr, auth, err := s.authorityFor(ctx, tx, configAddr, user)
	if err != nil {
		return err
	}
	sig := yield.AuthoritySignature{Authority: authAddr, Proof: auth.Credential}
	if err := s.source.Withdraw(tx, auth.Position, sig, to, amount); err != nil {
		return wrapExternal(err)
	}
	return nil
}

func (s *ServiceImpl) authorityFor(ctx context.Context, tx *store.Tx, configAddr, user types.Address) (types.Address, *types.VaultAuthority, error) {
	addr, _, err := s.deriver.Derive([]byte(address.TagVaultAuthority), configAddr.Bytes(), user.Bytes())
	if err != nil {
		return types.ZeroAddress, nil, err
	}
	auth, err := s.repo.GetAuthority(ctx, tx, addr)
	if err != nil {
		return types.ZeroAddress, nil, err
	}
	if !auth.User.Equal(user) || !auth.Config.Equal(configAddr) {
		return types.ZeroAddress, nil, fmt.Errorf("authority derivation mismatch for user %s: %w", user, types.ErrUnauthorized)
	}
	return addr, auth, nil
}

// wrapExternal keeps protocol sentinels intact and classifies everything else
// from the collaborator as an external failure.
func wrapExternal(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		types.ErrInvalidParameter,
		types.ErrUnauthorized,
		types.ErrNotFound,
		types.ErrDuplicateRecord,
		types.ErrInsufficientFunds,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%v: %w", err, types.ErrExternalFailure)
}
