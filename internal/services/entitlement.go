package services

import (
	"context"
	"errors"
	"math"
	"time"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/vpnkey"
)

// EntitlementPeriod is the access window granted by one approved payment.
const EntitlementPeriod = 30 * 24 * time.Hour

type KeyStatus string

const (
	StatusActive  KeyStatus = "active"
	StatusExpired KeyStatus = "expired"
	StatusNoKey   KeyStatus = "no_key"
)

// Entitlement is the live view of a user's access.
type Entitlement struct {
	Status      KeyStatus
	Key         db.VPNKey
	ActivatedAt time.Time
	ExpiresAt   time.Time
	DaysLeft    int
	Location    string
}

// Expiry is always recomputed from the activation date. The stored
// ExpirationDate column is never consulted.
func Expiry(k db.VPNKey, now time.Time) time.Time {
	return activation(k, now).Add(EntitlementPeriod)
}

func activation(k db.VPNKey, now time.Time) time.Time {
	if k.ActivationDate == nil {
		return now
	}
	return *k.ActivationDate
}

// StatusOf reports whether k is still inside its entitlement window.
func StatusOf(k db.VPNKey, now time.Time) KeyStatus {
	if now.After(Expiry(k, now)) {
		return StatusExpired
	}
	return StatusActive
}

// DaysRemaining is floor((expiry - now) / 24h); negative once expired.
func DaysRemaining(k db.VPNKey, now time.Time) int {
	return int(math.Floor(Expiry(k, now).Sub(now).Hours() / 24))
}

type EntitlementCalculator struct {
	store db.Store
	now   func() time.Time
}

func NewEntitlementCalculator(store db.Store, now func() time.Time) *EntitlementCalculator {
	if now == nil {
		now = time.Now
	}
	return &EntitlementCalculator{store: store, now: now}
}

// Check returns the entitlement of the user's most recent key, or
// StatusNoKey when the user has none.
func (e *EntitlementCalculator) Check(ctx context.Context, userID int64) (Entitlement, error) {
	key, err := e.store.Keys().LatestForUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return Entitlement{Status: StatusNoKey}, nil
	}
	if err != nil {
		return Entitlement{}, err
	}
	now := e.now()
	return Entitlement{
		Status:      StatusOf(key, now),
		Key:         key,
		ActivatedAt: activation(key, now),
		ExpiresAt:   Expiry(key, now),
		DaysLeft:    DaysRemaining(key, now),
		Location:    vpnkey.Location(key.Key),
	}, nil
}
