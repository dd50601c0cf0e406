package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same transactional contract as
// GormStore. Transactions are serialized and rolled back from a snapshot.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memData
	inTx bool
}

var _ Store = (*MemoryStore)(nil)

type memData struct {
	keys          map[uint]VPNKey
	payments      map[uint]Payment
	nextKeyID     uint
	nextPaymentID uint
}

func (d *memData) clone() *memData {
	c := &memData{
		keys:          make(map[uint]VPNKey, len(d.keys)),
		payments:      make(map[uint]Payment, len(d.payments)),
		nextKeyID:     d.nextKeyID,
		nextPaymentID: d.nextPaymentID,
	}
	for k, v := range d.keys {
		c.keys[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memData{
			keys:     make(map[uint]VPNKey),
			payments: make(map[uint]Payment),
		},
	}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Keys() KeyRepository         { return memKeys{s} }
func (s *MemoryStore) Payments() PaymentRepository { return memPayments{s} }

func (s *MemoryStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	tx := &MemoryStore{mu: s.mu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

type memKeys struct {
	s *MemoryStore
}

func (r memKeys) Add(_ context.Context, keys []VPNKey) (int, error) {
	defer r.s.lock()()
	existing := make(map[string]struct{}, len(r.s.data.keys))
	for _, k := range r.s.data.keys {
		existing[k.Key] = struct{}{}
	}
	added := 0
	for _, k := range keys {
		if _, ok := existing[k.Key]; ok {
			continue
		}
		r.s.data.nextKeyID++
		k.ID = r.s.data.nextKeyID
		r.s.data.keys[k.ID] = k
		existing[k.Key] = struct{}{}
		added++
	}
	return added, nil
}

func (r memKeys) DeleteUnused(_ context.Context) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, k := range r.s.data.keys {
		if !k.IsUsed {
			delete(r.s.data.keys, id)
			n++
		}
	}
	return n, nil
}

func (r memKeys) Get(_ context.Context, id uint) (VPNKey, error) {
	defer r.s.lock()()
	k, ok := r.s.data.keys[id]
	if !ok {
		return VPNKey{}, ErrNotFound
	}
	return k, nil
}

func (r memKeys) LatestForUser(_ context.Context, userID int64) (VPNKey, error) {
	defer r.s.lock()()
	var (
		best  VPNKey
		found bool
	)
	for _, k := range r.s.data.keys {
		if !k.IsUsed || k.UserID == nil || *k.UserID != userID {
			continue
		}
		if !found || newerKey(k, best) {
			best, found = k, true
		}
	}
	if !found {
		return VPNKey{}, ErrNotFound
	}
	return best, nil
}

func newerKey(a, b VPNKey) bool {
	var at, bt time.Time
	if a.ActivationDate != nil {
		at = *a.ActivationDate
	}
	if b.ActivationDate != nil {
		bt = *b.ActivationDate
	}
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID > b.ID
}

func (r memKeys) List(_ context.Context, filter KeyFilter) ([]VPNKey, error) {
	defer r.s.lock()()
	keys := make([]VPNKey, 0, len(r.s.data.keys))
	for _, k := range r.s.data.keys {
		switch {
		case filter == KeysFree && k.IsUsed:
			continue
		case filter == KeysUsed && !k.IsUsed:
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

func (r memKeys) Count(_ context.Context) (KeyCounts, error) {
	defer r.s.lock()()
	var c KeyCounts
	for _, k := range r.s.data.keys {
		c.Total++
		if k.IsUsed {
			c.Used++
		}
	}
	return c, nil
}

func (r memKeys) Allocate(_ context.Context, b Binding) (VPNKey, error) {
	defer r.s.lock()()
	var (
		pick  VPNKey
		found bool
	)
	for _, k := range r.s.data.keys {
		if k.IsUsed {
			continue
		}
		if !found || k.ID < pick.ID {
			pick, found = k, true
		}
	}
	if !found {
		return VPNKey{}, ErrNoFreeKey
	}
	bindKey(&pick, b)
	r.s.data.keys[pick.ID] = pick
	return pick, nil
}

type memPayments struct {
	s *MemoryStore
}

func (r memPayments) Create(_ context.Context, p *Payment) error {
	defer r.s.lock()()
	r.s.data.nextPaymentID++
	p.ID = r.s.data.nextPaymentID
	r.s.data.payments[p.ID] = *p
	return nil
}

func (r memPayments) Get(_ context.Context, id uint) (Payment, error) {
	defer r.s.lock()()
	p, ok := r.s.data.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r memPayments) ListByStatus(_ context.Context, status PaymentStatus) ([]Payment, error) {
	defer r.s.lock()()
	var pays []Payment
	for _, p := range r.s.data.payments {
		if p.Status == status {
			pays = append(pays, p)
		}
	}
	sort.Slice(pays, func(i, j int) bool { return pays[i].ID < pays[j].ID })
	return pays, nil
}

func (r memPayments) LatestForUser(_ context.Context, userID int64) (Payment, error) {
	defer r.s.lock()()
	var (
		best  Payment
		found bool
	)
	for _, p := range r.s.data.payments {
		if p.UserID == userID && (!found || p.ID > best.ID) {
			best, found = p, true
		}
	}
	if !found {
		return Payment{}, ErrNotFound
	}
	return best, nil
}

func (r memPayments) Resolve(_ context.Context, id uint, to PaymentStatus, issuedKeyID *uint, at time.Time) error {
	defer r.s.lock()()
	p, ok := r.s.data.payments[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != PaymentPending {
		return ErrConflict
	}
	decided := at
	p.Status = to
	p.IssuedKeyID = issuedKeyID
	p.DecidedAt = &decided
	r.s.data.payments[id] = p
	return nil
}
