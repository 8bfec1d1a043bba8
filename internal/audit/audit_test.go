package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherDeliversToWorker(t *testing.T) {
	store := NewMemoryStore()
	publisher := NewPublisher(8, nil, discardLogger())
	worker := NewWorker(store, publisher.Inbox(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	publisher.Emit(ctx, Event{Actor: "desk@example.com", Action: ActionSlotAssigned, PassID: "p1"})
	publisher.Emit(ctx, Event{Actor: "desk@example.com", Action: ActionCashVerified, PassID: "p1"})

	require.Eventually(t, func() bool {
		return len(store.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	events := store.Events()
	assert.Equal(t, ActionSlotAssigned, events[0].Action)
	assert.False(t, events[0].OccurredAt.IsZero(), "emit stamps the event")
}

func TestPublisherDropsOnFullBuffer(t *testing.T) {
	// No worker draining: the second emit must drop, not block.
	publisher := NewPublisher(1, nil, discardLogger())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		publisher.Emit(ctx, Event{Action: ActionSlotAssigned})
		publisher.Emit(ctx, Event{Action: ActionSlotDeleted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full buffer")
	}
	assert.Len(t, publisher.Inbox(), 1)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var publisher *Publisher
	publisher.Emit(context.Background(), Event{Action: ActionAttendanceMark})
}
