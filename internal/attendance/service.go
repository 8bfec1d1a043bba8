// Package attendance flips slot attendance flags under role-gated,
// idempotent transitions.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"passgate/internal/audit"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/platform/metrics"
	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/sentinel"
)

var markRoles = []identity.Role{identity.RoleEventAdmin, identity.RoleDeptAdmin, identity.RoleSuperAdmin}

// Service is the attendance tracker.
type Service struct {
	passes  pass.Store
	trail   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	// allowUnmark permits the attended -> unattended transition. Which way
	// this should go has flip-flopped operationally, so it is an explicit
	// configuration flag rather than an assumption.
	allowUnmark bool
}

func NewService(passes pass.Store, trail *audit.Publisher, m *metrics.Metrics, logger *slog.Logger, allowUnmark bool) *Service {
	return &Service{
		passes:      passes,
		trail:       trail,
		metrics:     m,
		logger:      logger,
		allowUnmark: allowUnmark,
	}
}

// Mark sets the attended flag on the slot binding the given event. Marking an
// already-attended slot is a no-op success, so client retries are always
// safe. The transition runs under the pass row lock, which also serializes it
// against slot deletion: a slot can never be deleted after its attendance
// check passed.
func (s *Service) Mark(ctx context.Context, actor identity.Actor, passID uuid.UUID, eventID int64, attended bool) error {
	result := "noop"
	err := s.passes.WithPassLock(ctx, passID, func(ctx context.Context, tx pass.SlotTx) error {
		event, err := tx.Event(ctx, eventID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "event not found")
			}
			return err
		}
		if !identity.Authorize(actor.Role, actor.Department, event.Department, markRoles) {
			return dErrors.New(dErrors.CodeForbidden, "event not in your department")
		}

		slots, err := tx.Slots(ctx)
		if err != nil {
			return err
		}
		var target *pass.Slot
		for i := range slots {
			if slots[i].EventID == eventID {
				target = &slots[i]
				break
			}
		}
		if target == nil {
			return dErrors.New(dErrors.CodeNotFound, "slot for event not found on this pass")
		}

		if target.Attended == attended {
			return nil
		}
		if !attended && !s.allowUnmark {
			return dErrors.New(dErrors.CodeConflict, "attendance cannot be reverted")
		}

		if attended {
			result = "marked"
		} else {
			result = "unmarked"
		}
		return tx.SetAttended(ctx, target.SlotNo, attended)
	})
	if err != nil {
		return s.finish(ctx, err)
	}

	s.metrics.RecordAttendance(result)
	if result != "noop" {
		s.trail.Emit(ctx, audit.Event{
			Actor:  actor.Email,
			Action: audit.ActionAttendanceMark,
			PassID: passID.String(),
			Detail: fmt.Sprintf("event %d attended=%t", eventID, attended),
		})
	}
	return nil
}

func (s *Service) finish(ctx context.Context, err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	default:
		s.logger.ErrorContext(ctx, "attendance transition failed", "error", err)
		return dErrors.Wrap(dErrors.CodeInternal, "attendance transition failed", err)
	}
}
