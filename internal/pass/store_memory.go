package pass

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"passgate/internal/directory"
	"passgate/pkg/platform/sentinel"
)

// MemoryStore keeps passes and slots in memory for unit tests. It mirrors
// the PostgreSQL semantics that matter to callers: per-pass serialization in
// WithPassLock, conflict sentinels for the two uniqueness constraints, and
// counter maintenance through the linked directory store.
type MemoryStore struct {
	mu       sync.RWMutex
	passes   map[uuid.UUID]Pass
	slots    map[uuid.UUID][]Slot
	receipts map[uuid.UUID]Receipt

	lockMu    sync.Mutex
	passLocks map[uuid.UUID]*sync.Mutex

	events *directory.MemoryStore
}

func NewMemoryStore(events *directory.MemoryStore) *MemoryStore {
	return &MemoryStore{
		passes:    make(map[uuid.UUID]Pass),
		slots:     make(map[uuid.UUID][]Slot),
		receipts:  make(map[uuid.UUID]Receipt),
		passLocks: make(map[uuid.UUID]*sync.Mutex),
		events:    events,
	}
}

// AddPass seeds a pass directly; test helper.
func (s *MemoryStore) AddPass(p Pass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes[p.ID] = p
}

func (s *MemoryStore) PassByID(_ context.Context, id uuid.UUID) (*Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.passes[id]; ok {
		return &p, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) SlotsDetailed(ctx context.Context, passID uuid.UUID) ([]SlotDetail, error) {
	s.mu.RLock()
	slots := append([]Slot(nil), s.slots[passID]...)
	s.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNo < slots[j].SlotNo })
	details := make([]SlotDetail, 0, len(slots))
	for _, slot := range slots {
		d := SlotDetail{Slot: slot}
		if event, err := s.events.EventByExternalID(ctx, slot.EventID); err == nil {
			d.EventName = event.Name
			d.Department = event.Department
		}
		details = append(details, d)
	}
	return details, nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var passes []Pass
	for _, p := range s.passes {
		if filter.Verified != nil && p.Verified != *filter.Verified {
			continue
		}
		if filter.PaymentMethod != "" && p.PaymentMethod != filter.PaymentMethod {
			continue
		}
		passes = append(passes, p)
	}
	sort.Slice(passes, func(i, j int) bool { return passes[i].CreatedAt.After(passes[j].CreatedAt) })
	return passes, nil
}

func (s *MemoryStore) CreateWithReceipt(_ context.Context, p *Pass, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.PaymentID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.passes[p.ID]; ok {
		return sentinel.ErrConflict
	}
	s.receipts[r.PaymentID] = *r
	s.passes[p.ID] = *p
	return nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passes[id]
	if !ok || p.Verified {
		return false, nil
	}
	p.Verified = true
	s.passes[id] = p
	return true, nil
}

func (s *MemoryStore) WithPassLock(ctx context.Context, passID uuid.UUID, fn func(ctx context.Context, tx SlotTx) error) error {
	s.mu.RLock()
	_, exists := s.passes[passID]
	s.mu.RUnlock()
	if !exists {
		return sentinel.ErrNotFound
	}

	lock := s.passLock(passID)
	lock.Lock()
	defer lock.Unlock()

	return fn(ctx, &memSlotTx{store: s, passID: passID})
}

func (s *MemoryStore) passLock(passID uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.passLocks[passID]
	if !ok {
		lock = &sync.Mutex{}
		s.passLocks[passID] = lock
	}
	return lock
}

type memSlotTx struct {
	store  *MemoryStore
	passID uuid.UUID
}

func (t *memSlotTx) Slots(_ context.Context) ([]Slot, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	slots := append([]Slot(nil), t.store.slots[t.passID]...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNo < slots[j].SlotNo })
	return slots, nil
}

func (t *memSlotTx) Event(ctx context.Context, externalID int64) (*directory.Event, error) {
	return t.store.events.EventByExternalID(ctx, externalID)
}

func (t *memSlotTx) InsertSlot(_ context.Context, slot Slot) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, existing := range t.store.slots[t.passID] {
		if existing.SlotNo == slot.SlotNo || existing.EventID == slot.EventID {
			return sentinel.ErrConflict
		}
	}
	t.store.slots[t.passID] = append(t.store.slots[t.passID], slot)
	return nil
}

func (t *memSlotTx) DeleteSlot(_ context.Context, slotNo int) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	slots := t.store.slots[t.passID]
	for i, slot := range slots {
		if slot.SlotNo == slotNo {
			t.store.slots[t.passID] = append(slots[:i], slots[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (t *memSlotTx) SetAttended(_ context.Context, slotNo int, attended bool) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	slots := t.store.slots[t.passID]
	for i, slot := range slots {
		if slot.SlotNo == slotNo {
			slots[i].Attended = attended
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (t *memSlotTx) AdjustRegistrations(ctx context.Context, eventID int64, delta int64) error {
	return t.store.events.AdjustRegistrations(ctx, eventID, delta)
}
