package pass

import (
	"context"

	"github.com/google/uuid"

	"passgate/internal/directory"
)

// Filter restricts List results.
type Filter struct {
	Verified      *bool
	PaymentMethod string
}

// Store is the pass persistence surface.
type Store interface {
	PassByID(ctx context.Context, id uuid.UUID) (*Pass, error)
	// SlotsDetailed returns the pass's slots joined with event name and
	// department, ordered by slot number.
	SlotsDetailed(ctx context.Context, passID uuid.UUID) ([]SlotDetail, error)
	List(ctx context.Context, filter Filter) ([]Pass, error)
	// CreateWithReceipt inserts the receipt and then the pass in one
	// transaction; the receipt must exist before the pass that links it.
	CreateWithReceipt(ctx context.Context, p *Pass, r *Receipt) error
	// MarkVerified flips verified to true only where it is currently false
	// and reports whether a row transitioned. Compare-and-swap, not a lock:
	// zero rows affected means another caller already completed the
	// transition.
	MarkVerified(ctx context.Context, id uuid.UUID) (bool, error)
	// WithPassLock runs fn inside a transaction holding a row lock on the
	// pass. All concurrent slot mutations against the same pass serialize
	// here; unrelated passes proceed in parallel. A uniqueness violation
	// surfacing anywhere inside (a lost race) is returned as
	// sentinel.ErrConflict, and the whole transaction rolls back.
	WithPassLock(ctx context.Context, passID uuid.UUID, fn func(ctx context.Context, tx SlotTx) error) error
}

// SlotTx is the slot mutation surface available while the pass row is locked.
type SlotTx interface {
	// Slots returns the locked pass's slots.
	Slots(ctx context.Context) ([]Slot, error)
	// Event loads a catalog event inside the same transaction.
	Event(ctx context.Context, externalID int64) (*directory.Event, error)
	InsertSlot(ctx context.Context, slot Slot) error
	DeleteSlot(ctx context.Context, slotNo int) error
	SetAttended(ctx context.Context, slotNo int, attended bool) error
	// AdjustRegistrations moves the event's derived counter by delta,
	// floored at zero to tolerate prior drift.
	AdjustRegistrations(ctx context.Context, eventID int64, delta int64) error
}
