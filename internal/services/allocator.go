package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/metrics"

	"go.uber.org/zap"
)

// AllocationRequest identifies who receives a key and until when.
type AllocationRequest struct {
	UserID         int64
	Username       *string
	Phone          *string
	EntitlementEnd time.Time
}

// Allocator binds unused keys to users. The atomicity guarantee comes from
// db.KeyRepository.Allocate; the allocator adds timestamps, logging and metrics.
type Allocator struct {
	store db.Store
	now   func() time.Time
	log   *zap.Logger
}

func NewAllocator(store db.Store, now func() time.Time, log *zap.Logger) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{store: store, now: now, log: log.Named("allocator")}
}

func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (db.VPNKey, error) {
	return a.AllocateIn(ctx, a.store, req)
}

// AllocateIn allocates through store, which may be a transactional view.
func (a *Allocator) AllocateIn(ctx context.Context, store db.Store, req AllocationRequest) (db.VPNKey, error) {
	key, err := store.Keys().Allocate(ctx, db.Binding{
		UserID:      req.UserID,
		Username:    req.Username,
		Phone:       req.Phone,
		ActivatedAt: a.now().UTC(),
		ExpiresAt:   req.EntitlementEnd.UTC(),
	})
	if errors.Is(err, db.ErrNoFreeKey) {
		a.log.Warn("no free keys", zap.Int64("user_id", req.UserID))
		return db.VPNKey{}, ErrNoKeyAvailable
	}
	if err != nil {
		return db.VPNKey{}, fmt.Errorf("allocate key: %w", err)
	}
	metrics.IncKeyAllocated()
	a.log.Info("key allocated", zap.Uint("key_id", key.ID), zap.Int64("user_id", req.UserID))
	return key, nil
}
