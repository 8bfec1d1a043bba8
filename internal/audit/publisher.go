package audit

import (
	"context"
	"log/slog"
	"time"

	"passgate/internal/platform/metrics"
)

// Publisher fans staff actions into the worker's inbox. Emit drops the event
// when the buffer is full rather than blocking the request path; drops are
// counted and logged.
type Publisher struct {
	inbox   chan Event
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewPublisher(buffer int, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:   make(chan Event, buffer),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit queues an event for persistence. Nil receivers are allowed so tests
// can run services without an audit trail.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	select {
	case p.inbox <- event:
	default:
		p.metrics.RecordAuditDrop()
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", event.Action,
			"pass_id", event.PassID,
		)
	}
}

// Inbox exposes the event channel for the worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }
