package db

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrNoFreeKey = errors.New("no unused key left")
	// ErrConflict means a conditional update matched no row because another
	// writer changed it first.
	ErrConflict = errors.New("record was modified concurrently")
)

// KeyRepository is the vpn_keys table.
type KeyRepository interface {
	// Add inserts unused keys, silently skipping values that already exist.
	// It returns the number of rows inserted.
	Add(ctx context.Context, keys []VPNKey) (int, error)
	DeleteUnused(ctx context.Context) (int64, error)
	Get(ctx context.Context, id uint) (VPNKey, error)
	// LatestForUser returns the most recently activated key of the user.
	LatestForUser(ctx context.Context, userID int64) (VPNKey, error)
	List(ctx context.Context, filter KeyFilter) ([]VPNKey, error)
	Count(ctx context.Context) (KeyCounts, error)
	// Allocate atomically picks one unused key and binds it. Two concurrent
	// calls never receive the same key. Returns ErrNoFreeKey when the pool is empty.
	Allocate(ctx context.Context, b Binding) (VPNKey, error)
}

// PaymentRepository is the payments table.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id uint) (Payment, error)
	ListByStatus(ctx context.Context, status PaymentStatus) ([]Payment, error)
	LatestForUser(ctx context.Context, userID int64) (Payment, error)
	// Resolve moves a pending payment to a terminal status. It returns
	// ErrNotFound for unknown ids and ErrConflict when the payment is no
	// longer pending.
	Resolve(ctx context.Context, id uint, to PaymentStatus, issuedKeyID *uint, at time.Time) error
}

// Store is the shared persistent state of both bot processes.
type Store interface {
	Keys() KeyRepository
	Payments() PaymentRepository
	// Transaction runs fn against a transactional view of the store. Any
	// error returned by fn rolls back every write made through that view.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
