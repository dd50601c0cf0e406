package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"amega-vpn-bot/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type workflowEnv struct {
	store  *db.MemoryStore
	notify *fakeNotifier
	alert  *fakeAlerter
	wf     *Workflow
	now    time.Time
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := db.NewMemoryStore()
	notify := &fakeNotifier{}
	alert := &fakeAlerter{}
	alloc := NewAllocator(store, fixedClock(now), log)
	return &workflowEnv{
		store:  store,
		notify: notify,
		alert:  alert,
		wf:     NewWorkflow(store, alloc, notify, alert, fixedClock(now), log),
		now:    now,
	}
}

func (e *workflowEnv) submit(t *testing.T, userID int64) db.Payment {
	t.Helper()
	p, err := e.wf.Submit(context.Background(), Submission{UserID: userID})
	require.NoError(t, err)
	return p
}

func TestSubmitCreatesPending(t *testing.T) {
	env := newWorkflowEnv(t)

	p := env.submit(t, 42)

	assert.NotZero(t, p.ID)
	assert.Equal(t, db.PaymentPending, p.Status)
	assert.Equal(t, env.now, p.PaymentDate)
	assert.Equal(t, env.now.Add(30*24*time.Hour), p.NextPaymentDate)
	assert.Empty(t, env.notify.messages())
}

func TestApproveBindsKey(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	seedKeys(env.store, 2)
	p := env.submit(t, 42)

	out, err := env.wf.Decide(ctx, p.ID, DecisionApprove)
	require.NoError(t, err)
	require.NotNil(t, out.Key)
	assert.NoError(t, out.NotifyErr)

	assert.Equal(t, db.PaymentApproved, out.Payment.Status)
	require.NotNil(t, out.Payment.IssuedKeyID)
	assert.Equal(t, out.Key.ID, *out.Payment.IssuedKeyID)

	key, err := env.store.Keys().Get(ctx, out.Key.ID)
	require.NoError(t, err)
	assert.True(t, key.IsUsed)
	require.NotNil(t, key.UserID)
	assert.Equal(t, int64(42), *key.UserID)
	require.NotNil(t, key.ActivationDate)
	assert.True(t, env.now.Equal(*key.ActivationDate))

	stored, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentApproved, stored.Status)
	require.NotNil(t, stored.DecidedAt)

	msgs := env.notify.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "issued", msgs[0].kind)
	assert.Equal(t, key.ID, msgs[0].keyID)
}

func TestApproveWithEmptyPoolStaysPending(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	p := env.submit(t, 7)

	_, err := env.wf.Decide(ctx, p.ID, DecisionApprove)
	require.ErrorIs(t, err, ErrNoKeyAvailable)

	stored, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPending, stored.Status)
	assert.Nil(t, stored.IssuedKeyID)
	msgs := env.notify.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "exhausted", msgs[0].kind)
	assert.Equal(t, 1, env.alert.count())

	// The payment can still be approved once keys arrive.
	seedKeys(env.store, 1)
	out, err := env.wf.Decide(ctx, p.ID, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentApproved, out.Payment.Status)
	assert.Len(t, env.notify.messages(), 2)
}

func TestDecideUnknownPayment(t *testing.T) {
	env := newWorkflowEnv(t)

	_, err := env.wf.Decide(context.Background(), 999, DecisionApprove)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.wf.Decide(context.Background(), 999, DecisionReject)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecideUnknownDecision(t *testing.T) {
	env := newWorkflowEnv(t)
	p := env.submit(t, 1)

	_, err := env.wf.Decide(context.Background(), p.ID, Decision("maybe"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestRejectTwiceNotifiesOnce(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	p := env.submit(t, 5)

	out, err := env.wf.Decide(ctx, p.ID, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentRejected, out.Payment.Status)

	_, err = env.wf.Decide(ctx, p.ID, DecisionReject)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	msgs := env.notify.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rejected", msgs[0].kind)
}

func TestApproveAfterRejectIsAlreadyProcessed(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	seedKeys(env.store, 1)
	p := env.submit(t, 5)

	_, err := env.wf.Decide(ctx, p.ID, DecisionReject)
	require.NoError(t, err)
	_, err = env.wf.Decide(ctx, p.ID, DecisionApprove)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	counts, err := env.store.Keys().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Used)
}

func TestApproveTwiceAllocatesOnce(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	seedKeys(env.store, 3)
	p := env.submit(t, 5)

	_, err := env.wf.Decide(ctx, p.ID, DecisionApprove)
	require.NoError(t, err)
	_, err = env.wf.Decide(ctx, p.ID, DecisionApprove)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	counts, err := env.store.Keys().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Used)
	assert.Len(t, env.notify.messages(), 1)
}

func TestNotificationFailureKeepsDecision(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	seedKeys(env.store, 1)
	env.notify.failOn = map[int64]bool{13: true}
	p := env.submit(t, 13)

	out, err := env.wf.Decide(ctx, p.ID, DecisionApprove)
	require.NoError(t, err)
	assert.ErrorIs(t, out.NotifyErr, ErrTransportUnavailable)
	assert.Equal(t, 1, env.alert.count())

	stored, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentApproved, stored.Status)
}

func TestConcurrentApprovalsNeverShareKeys(t *testing.T) {
	const (
		pool     = 5
		payments = 12
	)
	env := newWorkflowEnv(t)
	ctx := context.Background()
	seedKeys(env.store, pool)

	ids := make([]uint, payments)
	for i := range ids {
		ids[i] = env.submit(t, int64(100+i)).ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   = map[uint]uint{}
		noKey    int
		otherErr []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			out, err := env.wf.Decide(ctx, id, DecisionApprove)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued[out.Key.ID] = id
			case errors.Is(err, ErrNoKeyAvailable):
				noKey++
			default:
				otherErr = append(otherErr, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Empty(t, otherErr)
	assert.Len(t, issued, pool)
	assert.Equal(t, payments-pool, noKey)

	pending, err := env.wf.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, payments-pool)

	used, err := env.store.Keys().List(ctx, db.KeysUsed)
	require.NoError(t, err)
	owners := map[int64]bool{}
	for _, k := range used {
		require.NotNil(t, k.UserID)
		require.NotNil(t, k.ActivationDate)
		assert.False(t, owners[*k.UserID], "user %d holds two keys", *k.UserID)
		owners[*k.UserID] = true
	}
}

func TestLatestPayment(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()

	_, err := env.wf.Latest(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	env.submit(t, 3)
	second := env.submit(t, 3)
	latest, err := env.wf.Latest(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
