// Package allocator implements transactional assignment and removal of slot
// bindings on a pass. Every mutation runs under the pass row lock, so
// concurrent staff operating on the same pass serialize while unrelated
// passes proceed in parallel.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"passgate/internal/audit"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/platform/metrics"
	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/sentinel"
)

// Roles permitted to assign and remove slots. event_admin manages attendance
// only; it does not place registrations.
var slotRoles = []identity.Role{identity.RoleVolunteer, identity.RoleDeptAdmin, identity.RoleSuperAdmin}

// Service is the slot allocator.
type Service struct {
	passes  pass.Store
	trail   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(passes pass.Store, trail *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		passes:  passes,
		trail:   trail,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// AssignSlot binds slotNo on the pass to the event. The entire check-and-
// insert sequence holds the pass row lock; a uniqueness race lost at commit
// time still comes back as a conflict, never a raw storage error.
func (s *Service) AssignSlot(ctx context.Context, actor identity.Actor, passID uuid.UUID, slotNo int, eventID int64) (*pass.Slot, error) {
	if slotNo < 1 || slotNo > pass.MaxSlots {
		s.metrics.RecordSlotOperation("assign", "bad_request")
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "slot_no must be between 1 and %d", pass.MaxSlots)
	}

	var created pass.Slot
	err := s.passes.WithPassLock(ctx, passID, func(ctx context.Context, tx pass.SlotTx) error {
		event, err := tx.Event(ctx, eventID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "event not found")
			}
			return err
		}

		if !identity.Authorize(actor.Role, actor.Department, event.Department, slotRoles) {
			return dErrors.New(dErrors.CodeForbidden, "not permitted for this event's department")
		}

		slots, err := tx.Slots(ctx)
		if err != nil {
			return err
		}
		for _, existing := range slots {
			if existing.EventID == eventID {
				return dErrors.New(dErrors.CodeConflict, "event already assigned to this pass")
			}
			if existing.SlotNo == slotNo {
				return dErrors.New(dErrors.CodeConflict, "slot number already used for this pass")
			}
		}

		created = pass.Slot{
			PassID:     passID,
			SlotNo:     slotNo,
			EventID:    eventID,
			Attended:   false,
			AssignedAt: s.now().UTC(),
		}
		if err := tx.InsertSlot(ctx, created); err != nil {
			return err
		}
		return tx.AdjustRegistrations(ctx, eventID, +1)
	})
	if err != nil {
		return nil, s.finishSlotOp(ctx, "assign", err)
	}

	s.metrics.RecordSlotOperation("assign", "ok")
	s.trail.Emit(ctx, audit.Event{
		Actor:  actor.Email,
		Action: audit.ActionSlotAssigned,
		PassID: passID.String(),
		Detail: fmt.Sprintf("slot %d -> event %d", slotNo, eventID),
	})
	return &created, nil
}

// DeleteSlot removes an unattended slot binding and releases its
// registration count, floored at zero to tolerate prior counter drift.
func (s *Service) DeleteSlot(ctx context.Context, actor identity.Actor, passID uuid.UUID, slotNo int) error {
	if slotNo < 1 || slotNo > pass.MaxSlots {
		s.metrics.RecordSlotOperation("delete", "bad_request")
		return dErrors.Newf(dErrors.CodeBadRequest, "slot_no must be between 1 and %d", pass.MaxSlots)
	}

	var removedEvent int64
	err := s.passes.WithPassLock(ctx, passID, func(ctx context.Context, tx pass.SlotTx) error {
		slots, err := tx.Slots(ctx)
		if err != nil {
			return err
		}
		var target *pass.Slot
		for i := range slots {
			if slots[i].SlotNo == slotNo {
				target = &slots[i]
				break
			}
		}
		if target == nil {
			return dErrors.New(dErrors.CodeNotFound, "slot not found")
		}
		if target.Attended {
			return dErrors.New(dErrors.CodeConflict, "cannot delete attended slot")
		}

		event, err := tx.Event(ctx, target.EventID)
		if err != nil {
			return err
		}
		if !identity.Authorize(actor.Role, actor.Department, event.Department, slotRoles) {
			return dErrors.New(dErrors.CodeForbidden, "not permitted for this event's department")
		}

		removedEvent = target.EventID
		if err := tx.DeleteSlot(ctx, slotNo); err != nil {
			return err
		}
		return tx.AdjustRegistrations(ctx, target.EventID, -1)
	})
	if err != nil {
		return s.finishSlotOp(ctx, "delete", err)
	}

	s.metrics.RecordSlotOperation("delete", "ok")
	s.trail.Emit(ctx, audit.Event{
		Actor:  actor.Email,
		Action: audit.ActionSlotDeleted,
		PassID: passID.String(),
		Detail: fmt.Sprintf("slot %d (event %d)", slotNo, removedEvent),
	})
	return nil
}

// finishSlotOp translates lock/storage failures into the domain taxonomy and
// records the outcome.
func (s *Service) finishSlotOp(ctx context.Context, op string, err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		s.metrics.RecordSlotOperation(op, string(de.Code))
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.RecordSlotOperation(op, string(dErrors.CodeNotFound))
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	case errors.Is(err, sentinel.ErrConflict):
		// Lost a commit-time race against a concurrent writer.
		s.metrics.RecordSlotOperation(op, string(dErrors.CodeConflict))
		return dErrors.New(dErrors.CodeConflict, "conflicting slot assignment")
	default:
		s.logger.ErrorContext(ctx, "slot operation failed", "op", op, "error", err)
		s.metrics.RecordSlotOperation(op, string(dErrors.CodeInternal))
		return dErrors.Wrap(dErrors.CodeInternal, "slot operation failed", err)
	}
}
