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

// Notifier delivers messages to the user who submitted a payment.
type Notifier interface {
	KeyIssued(ctx context.Context, p db.Payment, key db.VPNKey) error
	PaymentRejected(ctx context.Context, p db.Payment) error
	RenewalReminder(ctx context.Context, key db.VPNKey, daysLeft int) error
	// KeysExhausted tells the user that approval is delayed by an empty pool.
	KeysExhausted(ctx context.Context, p db.Payment) error
}

// Alerter forwards operational problems to the admin chat.
type Alerter interface {
	Alert(msg string)
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Submission is what the user bot knows when a receipt arrives.
type Submission struct {
	UserID      int64
	Username    *string
	Phone       *string
	ReceiptPath *string
}

// Outcome reports a committed decision. NotifyErr is set when the user
// could not be told; the decision itself stays committed.
type Outcome struct {
	Payment   db.Payment
	Key       *db.VPNKey
	NotifyErr error
}

type Workflow struct {
	store  db.Store
	alloc  *Allocator
	notify Notifier
	alert  Alerter
	now    func() time.Time
	log    *zap.Logger
}

func NewWorkflow(store db.Store, alloc *Allocator, notify Notifier, alert Alerter, now func() time.Time, log *zap.Logger) *Workflow {
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		store:  store,
		alloc:  alloc,
		notify: notify,
		alert:  alert,
		now:    now,
		log:    log.Named("workflow"),
	}
}

// Submit records a pending payment. Key availability is not checked here.
func (w *Workflow) Submit(ctx context.Context, s Submission) (db.Payment, error) {
	now := w.now().UTC()
	p := db.Payment{
		UserID:          s.UserID,
		Username:        s.Username,
		Phone:           s.Phone,
		Status:          db.PaymentPending,
		ReceiptPath:     s.ReceiptPath,
		PaymentDate:     now,
		NextPaymentDate: now.Add(EntitlementPeriod),
	}
	if err := w.store.Payments().Create(ctx, &p); err != nil {
		return db.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	metrics.IncPaymentSubmitted()
	w.log.Info("payment submitted", zap.Uint("payment_id", p.ID), zap.Int64("user_id", p.UserID))
	return p, nil
}

// Decide applies an admin decision to a pending payment. It returns
// ErrNotFound for unknown ids, ErrAlreadyProcessed when the payment is no
// longer pending and ErrNoKeyAvailable when an approval finds an empty pool,
// in which case the payment stays pending.
func (w *Workflow) Decide(ctx context.Context, paymentID uint, d Decision) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch d {
	case DecisionApprove:
		out, err = w.approve(ctx, paymentID)
	case DecisionReject:
		out, err = w.reject(ctx, paymentID)
	default:
		return Outcome{}, fmt.Errorf("%w: decision %q", ErrMalformedInput, d)
	}
	metrics.ObserveDecision(string(d), resultLabel(err))
	return out, err
}

func (w *Workflow) approve(ctx context.Context, paymentID uint) (Outcome, error) {
	var (
		payment db.Payment
		key     db.VPNKey
	)
	err := w.store.Transaction(ctx, func(tx db.Store) error {
		p, err := tx.Payments().Get(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != db.PaymentPending {
			return ErrAlreadyProcessed
		}
		now := w.now().UTC()
		key, err = w.alloc.AllocateIn(ctx, tx, AllocationRequest{
			UserID:         p.UserID,
			Username:       p.Username,
			Phone:          p.Phone,
			EntitlementEnd: now.Add(EntitlementPeriod),
		})
		if err != nil {
			return err
		}
		if err := tx.Payments().Resolve(ctx, p.ID, db.PaymentApproved, &key.ID, now); err != nil {
			return resolveErr(err)
		}
		p.Status = db.PaymentApproved
		p.IssuedKeyID = &key.ID
		p.DecidedAt = &now
		payment = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoKeyAvailable) {
			w.log.Warn("approval left pending: key pool empty", zap.Uint("payment_id", paymentID))
			w.alert.Alert(fmt.Sprintf("Платёж #%d не одобрен: нет свободных ключей", paymentID))
			if p, gerr := w.store.Payments().Get(ctx, paymentID); gerr == nil {
				_ = w.delivered("keys_exhausted", p, w.notify.KeysExhausted(ctx, p))
			}
		}
		return Outcome{}, err
	}

	w.log.Info("payment approved",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("key_id", key.ID),
		zap.Int64("user_id", payment.UserID),
	)
	out := Outcome{Payment: payment, Key: &key}
	out.NotifyErr = w.delivered("key_issued", payment, w.notify.KeyIssued(ctx, payment, key))
	return out, nil
}

func (w *Workflow) reject(ctx context.Context, paymentID uint) (Outcome, error) {
	if err := w.store.Payments().Resolve(ctx, paymentID, db.PaymentRejected, nil, w.now().UTC()); err != nil {
		return Outcome{}, resolveErr(err)
	}
	payment, err := w.store.Payments().Get(ctx, paymentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reload payment: %w", err)
	}
	w.log.Info("payment rejected", zap.Uint("payment_id", payment.ID), zap.Int64("user_id", payment.UserID))
	out := Outcome{Payment: payment}
	out.NotifyErr = w.delivered("payment_rejected", payment, w.notify.PaymentRejected(ctx, payment))
	return out, nil
}

// delivered logs and alerts a failed notification and converts it to
// ErrTransportUnavailable.
func (w *Workflow) delivered(kind string, p db.Payment, err error) error {
	metrics.IncNotification(kind, err == nil)
	if err == nil {
		return nil
	}
	w.log.Error("user notification failed",
		zap.String("kind", kind),
		zap.Uint("payment_id", p.ID),
		zap.Int64("user_id", p.UserID),
		zap.Error(err),
	)
	w.alert.Alert(fmt.Sprintf("Не удалось уведомить пользователя %d о платеже #%d: %v", p.UserID, p.ID, err))
	return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
}

func (w *Workflow) Pending(ctx context.Context) ([]db.Payment, error) {
	return w.store.Payments().ListByStatus(ctx, db.PaymentPending)
}

func (w *Workflow) Get(ctx context.Context, paymentID uint) (db.Payment, error) {
	return w.store.Payments().Get(ctx, paymentID)
}

// Latest returns the user's most recent payment or ErrNotFound.
func (w *Workflow) Latest(ctx context.Context, userID int64) (db.Payment, error) {
	return w.store.Payments().LatestForUser(ctx, userID)
}

func resolveErr(err error) error {
	if errors.Is(err, db.ErrConflict) {
		return ErrAlreadyProcessed
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoKeyAvailable):
		return "no_key"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
