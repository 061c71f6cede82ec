package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository defines the contract for vault authority persistence inside a
// unit of work.
type Repository interface {
	CreateAuthority(ctx context.Context, tx *store.Tx, addr types.Address, auth *types.VaultAuthority) error
	GetAuthority(ctx context.Context, tx *store.Tx, addr types.Address) (*types.VaultAuthority, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
}

func NewRepositoryImpl(logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{logger: logger}
}

func (r *RepositoryImpl) CreateAuthority(ctx context.Context, tx *store.Tx, addr types.Address, auth *types.VaultAuthority) error {
	l := r.logger.With(slog.String("method", "CreateAuthority"), slog.String("authority", addr.String()))
	if err := tx.CreateRecord(addr, auth); err != nil {
		l.WarnContext(ctx, "vault authority already exists", slog.Any("error", err))
		return err
	}
	l.DebugContext(ctx, "vault authority staged")
	return nil
}

func (r *RepositoryImpl) GetAuthority(ctx context.Context, tx *store.Tx, addr types.Address) (*types.VaultAuthority, error) {
	rec, err := tx.GetRecord(addr)
	if err != nil {
		return nil, err
	}
	auth, ok := rec.(*types.VaultAuthority)
	if !ok {
		return nil, fmt.Errorf("record at %s is not a vault authority: %w", addr, types.ErrNotFound)
	}
	cp := *auth
	return &cp, nil
}
