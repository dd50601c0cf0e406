package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amega-vpn-bot/internal/vpnkey"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres and migrates both tables.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := gdb.AutoMigrate(&VPNKey{}, &Payment{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

func (s *GormStore) Keys() KeyRepository         { return gormKeys{db: s.db} }
func (s *GormStore) Payments() PaymentRepository { return gormPayments{db: s.db} }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type gormKeys struct {
	db *gorm.DB
}

func (r gormKeys) Add(ctx context.Context, keys []VPNKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&keys)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r gormKeys) DeleteUnused(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("is_used = ?", false).Delete(&VPNKey{})
	return res.RowsAffected, res.Error
}

func (r gormKeys) Get(ctx context.Context, id uint) (VPNKey, error) {
	var key VPNKey
	err := r.db.WithContext(ctx).First(&key, id).Error
	return key, notFound(err)
}

func (r gormKeys) LatestForUser(ctx context.Context, userID int64) (VPNKey, error) {
	var key VPNKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_used = ?", userID, true).
		Order("activation_date DESC, id DESC").
		First(&key).Error
	return key, notFound(err)
}

func (r gormKeys) List(ctx context.Context, filter KeyFilter) ([]VPNKey, error) {
	var keys []VPNKey
	q := r.db.WithContext(ctx).Model(&VPNKey{})
	switch filter {
	case KeysFree:
		q = q.Where("is_used = ?", false)
	case KeysUsed:
		q = q.Where("is_used = ?", true)
	}
	err := q.Order("id").Find(&keys).Error
	return keys, err
}

func (r gormKeys) Count(ctx context.Context) (KeyCounts, error) {
	var c KeyCounts
	if err := r.db.WithContext(ctx).Model(&VPNKey{}).Count(&c.Total).Error; err != nil {
		return c, err
	}
	err := r.db.WithContext(ctx).Model(&VPNKey{}).Where("is_used = ?", true).Count(&c.Used).Error
	return c, err
}

func (r gormKeys) Allocate(ctx context.Context, b Binding) (VPNKey, error) {
	var key VPNKey
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent allocations skip rows locked by each other.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("is_used = ?", false).
			Order("id").
			First(&key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoFreeKey
		}
		if err != nil {
			return err
		}
		bindKey(&key, b)
		res := tx.Model(&VPNKey{}).
			Where("id = ? AND is_used = ?", key.ID, false).
			Updates(map[string]interface{}{
				"is_used":         true,
				"user_id":         key.UserID,
				"username":        key.Username,
				"phone":           key.Phone,
				"xui_identifier":  key.XUIIdentifier,
				"xui_id":          key.XUIID,
				"activation_date": key.ActivationDate,
				"expiration_date": key.ExpirationDate,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return VPNKey{}, err
	}
	return key, nil
}

// bindKey applies b to an unused key in memory.
func bindKey(key *VPNKey, b Binding) {
	parsed := vpnkey.Parse(key.Key)
	userID := b.UserID
	activated := b.ActivatedAt
	expires := b.ExpiresAt
	key.IsUsed = true
	key.UserID = &userID
	key.Username = b.Username
	key.Phone = b.Phone
	key.XUIIdentifier = parsed.Identifier
	key.XUIID = parsed.ID
	key.ActivationDate = &activated
	key.ExpirationDate = &expires
}

type gormPayments struct {
	db *gorm.DB
}

func (r gormPayments) Create(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r gormPayments) Get(ctx context.Context, id uint) (Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	return p, notFound(err)
}

func (r gormPayments) ListByStatus(ctx context.Context, status PaymentStatus) ([]Payment, error) {
	var pays []Payment
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&pays).Error
	return pays, err
}

func (r gormPayments) LatestForUser(ctx context.Context, userID int64) (Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").First(&p).Error
	return p, notFound(err)
}

func (r gormPayments) Resolve(ctx context.Context, id uint, to PaymentStatus, issuedKeyID *uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, PaymentPending).
		Updates(map[string]interface{}{
			"status":        to,
			"issued_key_id": issuedKeyID,
			"decided_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}
