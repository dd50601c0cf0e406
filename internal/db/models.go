package db

import "time"

// VPNKey is a pre-generated connection string. It is bound to a user exactly
// once and never released.
type VPNKey struct {
	ID             uint       `gorm:"primaryKey"`
	Key            string     `gorm:"uniqueIndex;not null"`
	IsUsed         bool       `gorm:"index;not null;default:false"`
	UserID         *int64     `gorm:"index"`
	Username       *string
	Phone          *string
	XUIIdentifier  *string    `gorm:"column:xui_identifier"`
	XUIID          *string    `gorm:"column:xui_id"`
	ActivationDate *time.Time
	ExpirationDate *time.Time // display copy only, see services.Entitlement
}

func (VPNKey) TableName() string { return "vpn_keys" }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is a user's claim of having paid, reviewed manually by the admin.
type Payment struct {
	ID              uint          `gorm:"primaryKey"`
	UserID          int64         `gorm:"index;not null"`
	Username        *string
	Phone           *string
	Status          PaymentStatus `gorm:"type:varchar(16);index;not null"`
	ReceiptPath     *string
	PaymentDate     time.Time
	NextPaymentDate time.Time
	IssuedKeyID     *uint
	DecidedAt       *time.Time
}

func (Payment) TableName() string { return "payments" }

// KeyFilter selects a subset of keys for listing.
type KeyFilter string

const (
	KeysAll  KeyFilter = "all"
	KeysFree KeyFilter = "free"
	KeysUsed KeyFilter = "used"
)

// KeyCounts summarizes the key pool.
type KeyCounts struct {
	Total int64
	Used  int64
}

func (c KeyCounts) Free() int64 { return c.Total - c.Used }

// Binding carries the user data written onto a key at allocation.
type Binding struct {
	UserID      int64
	Username    *string
	Phone       *string
	ActivatedAt time.Time
	ExpiresAt   time.Time
}
