package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"amega-vpn-bot/internal/db"
)

type sentMessage struct {
	kind      string
	userID    int64
	paymentID uint
	keyID     uint
	days      int
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn map[int64]bool
}

func (f *fakeNotifier) record(m sentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[m.userID] {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeNotifier) KeyIssued(_ context.Context, p db.Payment, key db.VPNKey) error {
	return f.record(sentMessage{kind: "issued", userID: p.UserID, paymentID: p.ID, keyID: key.ID})
}

func (f *fakeNotifier) PaymentRejected(_ context.Context, p db.Payment) error {
	return f.record(sentMessage{kind: "rejected", userID: p.UserID, paymentID: p.ID})
}

func (f *fakeNotifier) RenewalReminder(_ context.Context, key db.VPNKey, days int) error {
	return f.record(sentMessage{kind: "reminder", userID: *key.UserID, keyID: key.ID, days: days})
}

func (f *fakeNotifier) KeysExhausted(_ context.Context, p db.Payment) error {
	return f.record(sentMessage{kind: "exhausted", userID: p.UserID, paymentID: p.ID})
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeAlerter) Alert(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, msg)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedKeys(store db.Store, n int) {
	ctx := context.Background()
	counts, err := store.Keys().Count(ctx)
	if err != nil {
		panic(err)
	}
	keys := make([]db.VPNKey, n)
	for i := range keys {
		id := int(counts.Total) + i
		keys[i] = db.VPNKey{Key: fmt.Sprintf("vless://id-%d@host:443#AmegaVPN-vpn-germany-%02d", id, id)}
	}
	if _, err := store.Keys().Add(ctx, keys); err != nil {
		panic(err)
	}
}
