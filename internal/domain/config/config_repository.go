package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository defines the contract for config record persistence inside a
// unit of work.
type Repository interface {
	CreateConfig(ctx context.Context, tx *store.Tx, addr types.Address, cfg *types.Config) error
	GetConfig(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Config, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
}

func NewRepositoryImpl(logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{logger: logger}
}

func (r *RepositoryImpl) CreateConfig(ctx context.Context, tx *store.Tx, addr types.Address, cfg *types.Config) error {
	l := r.logger.With(slog.String("method", "CreateConfig"), slog.String("config", addr.String()))
	if err := tx.CreateRecord(addr, cfg); err != nil {
		l.WarnContext(ctx, "config already exists at derived address", slog.Any("error", err))
		return err
	}
	l.DebugContext(ctx, "config record staged")
	return nil
}

func (r *RepositoryImpl) GetConfig(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Config, error) {
	rec, err := tx.GetRecord(addr)
	if err != nil {
		return nil, err
	}
	cfg, ok := rec.(*types.Config)
	if !ok {
		return nil, fmt.Errorf("record at %s is not a config: %w", addr, types.ErrNotFound)
	}
	cp := *cfg
	return &cp, nil
}
