package services

import (
	"context"
	"fmt"
	"time"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReminderDays are the exact days-left values that trigger a renewal reminder.
var ReminderDays = []int{5, 3, 1}

type SweepResult struct {
	RunID   string
	Checked int
	Sent    int
	Failed  int
}

// Reminder notifies users whose keys are about to expire.
type Reminder struct {
	store  db.Store
	notify Notifier
	alert  Alerter
	now    func() time.Time
	log    *zap.Logger
}

func NewReminder(store db.Store, notify Notifier, alert Alerter, now func() time.Time, log *zap.Logger) *Reminder {
	if now == nil {
		now = time.Now
	}
	return &Reminder{store: store, notify: notify, alert: alert, now: now, log: log.Named("reminder")}
}

func isReminderDay(days int) bool {
	for _, d := range ReminderDays {
		if d == days {
			return true
		}
	}
	return false
}

// Sweep checks every used key once. A failed notification is counted and
// the sweep moves on to the next key.
func (r *Reminder) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{RunID: uuid.NewString()}
	log := r.log.With(zap.String("run_id", res.RunID))

	keys, err := r.store.Keys().List(ctx, db.KeysUsed)
	if err != nil {
		return res, fmt.Errorf("list used keys: %w", err)
	}
	now := r.now()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		if key.UserID == nil {
			continue
		}
		days := DaysRemaining(key, now)
		if !isReminderDay(days) {
			continue
		}
		err := r.notify.RenewalReminder(ctx, key, days)
		metrics.IncReminder(days, err == nil)
		if err != nil {
			res.Failed++
			log.Error("reminder failed", zap.Uint("key_id", key.ID), zap.Int64("user_id", *key.UserID), zap.Error(err))
			continue
		}
		res.Sent++
	}
	log.Info("reminder sweep finished",
		zap.Int("checked", res.Checked),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		r.alert.Alert(fmt.Sprintf("Напоминания: %d не доставлено из %d", res.Failed, res.Sent+res.Failed))
	}
	return res, nil
}
