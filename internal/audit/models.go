// Package audit records staff write actions on an asynchronous trail.
// Emission never blocks a request: events go through a buffered channel and
// a background worker persists them.
package audit

import (
	"context"
	"time"
)

// Actions recorded on the trail.
const (
	ActionSlotAssigned   = "slot_assigned"
	ActionSlotDeleted    = "slot_deleted"
	ActionAttendanceMark = "attendance_marked"
	ActionCashVerified   = "cash_verified"
	ActionPassCreated    = "pass_created"
)

// Event is one recorded staff action.
type Event struct {
	Actor      string
	Action     string
	PassID     string
	Detail     string
	OccurredAt time.Time
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
