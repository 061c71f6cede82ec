package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaultpay/vaultpay/internal/store"
	"github.com/vaultpay/vaultpay/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository defines the contract for subscription persistence inside a unit
// of work. Terminal subscriptions are never deleted; they stay for audit.
type Repository interface {
	CreateSubscription(ctx context.Context, tx *store.Tx, addr types.Address, sub *types.Subscription) error
	GetSubscription(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Subscription, error)
	UpdateSubscription(ctx context.Context, tx *store.Tx, addr types.Address, sub *types.Subscription) error
}

type RepositoryImpl struct {
	logger *slog.Logger
}

func NewRepositoryImpl(logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{logger: logger}
}

func (r *RepositoryImpl) CreateSubscription(ctx context.Context, tx *store.Tx, addr types.Address, sub *types.Subscription) error {
	l := r.logger.With(slog.String("method", "CreateSubscription"), slog.String("subscription", addr.String()))
	if err := tx.CreateRecord(addr, sub); err != nil {
		l.WarnContext(ctx, "subscription already exists for this vendor and user", slog.Any("error", err))
		return err
	}
	l.DebugContext(ctx, "subscription staged")
	return nil
}

func (r *RepositoryImpl) GetSubscription(ctx context.Context, tx *store.Tx, addr types.Address) (*types.Subscription, error) {
	rec, err := tx.GetRecord(addr)
	if err != nil {
		return nil, err
	}
	sub, ok := rec.(*types.Subscription)
	if !ok {
		return nil, fmt.Errorf("record at %s is not a subscription: %w", addr, types.ErrNotFound)
	}
	cp := *sub
	return &cp, nil
}

func (r *RepositoryImpl) UpdateSubscription(ctx context.Context, tx *store.Tx, addr types.Address, sub *types.Subscription) error {
	return tx.PutRecord(addr, sub)
}
