// Package pass owns admission passes, their slot bindings, and the linked
// payment receipts.
package pass

import (
	"time"

	"github.com/google/uuid"
)

// MaxSlots is the number of slot bindings a pass can hold.
const MaxSlots = 4

// Pass is a participant's admission record.
type Pass struct {
	ID            uuid.UUID `json:"id"`
	UserEmail     string    `json:"user_email"`
	PaymentID     uuid.UUID `json:"payment_id"`
	PaymentMethod string    `json:"payment_method"`
	Verified      bool      `json:"verified"`
	Issued        bool      `json:"issued"`
	CreatedAt     time.Time `json:"created_at"`
}

// Slot binds one slot number on a pass to an event. (PassID, SlotNo) is the
// natural key; (PassID, EventID) is unique as well, so a pass cannot hold the
// same event twice.
type Slot struct {
	PassID     uuid.UUID `json:"pass_id"`
	SlotNo     int       `json:"slot_no"`
	EventID    int64     `json:"event_id"`
	Attended   bool      `json:"attended"`
	AssignedAt time.Time `json:"assigned_at"`
}

// SlotDetail is a slot joined with catalog fields for scan responses.
type SlotDetail struct {
	Slot
	EventName  string `json:"event_name"`
	Department *int64 `json:"department_id"`
}

// Receipt records the payment backing a pass. The receipt row exists before
// the pass row that references it.
type Receipt struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Method    string    `json:"method"`
	Amount    int64     `json:"amount"`
	PaidOn    time.Time `json:"paid_on"`
}
