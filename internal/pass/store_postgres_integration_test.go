//go:build integration

package pass_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"passgate/internal/pass"
	"passgate/pkg/platform/sentinel"
	"passgate/pkg/testutil/containers"
)

type pgFixture struct {
	store  *pass.PostgresStore
	pc     *containers.PostgresContainer
	passID uuid.UUID
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)

	var deptID int64
	require.NoError(t, pc.Pool.QueryRow(ctx,
		`INSERT INTO departments (name) VALUES ('CSE_SSN') RETURNING id`).Scan(&deptID))
	_, err := pc.Pool.Exec(ctx,
		`INSERT INTO events (external_id, name, department_id, event_type) VALUES
		 (10, 'Algorithm Design', $1, 'technical'),
		 (11, 'Quiz Night', $1, 'non-technical')`, deptID)
	require.NoError(t, err)

	store := pass.NewPostgresStore(pc.Pool)
	passID := uuid.New()
	receiptID := uuid.New()
	require.NoError(t, store.CreateWithReceipt(ctx, &pass.Pass{
		ID: passID, UserEmail: "p1@example.com", PaymentID: receiptID,
		PaymentMethod: "cash", CreatedAt: time.Now(),
	}, &pass.Receipt{
		PaymentID: receiptID, Method: "cash", Amount: 300, PaidOn: time.Now(),
	}))

	return &pgFixture{store: store, pc: pc, passID: passID}
}

func (f *pgFixture) insertSlot(ctx context.Context, slotNo int, eventID int64) error {
	return f.store.WithPassLock(ctx, f.passID, func(ctx context.Context, tx pass.SlotTx) error {
		if err := tx.InsertSlot(ctx, pass.Slot{
			PassID: f.passID, SlotNo: slotNo, EventID: eventID, AssignedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.AdjustRegistrations(ctx, eventID, 1)
	})
}

func (f *pgFixture) registrations(t *testing.T, eventID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.pc.Pool.QueryRow(context.Background(),
		`SELECT registrations FROM events WHERE external_id = $1`, eventID).Scan(&n))
	return n
}

func TestPostgresPassLifecycle(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	p, err := f.store.PassByID(ctx, f.passID)
	require.NoError(t, err)
	assert.Equal(t, "p1@example.com", p.UserEmail)
	assert.False(t, p.Verified)

	require.NoError(t, f.insertSlot(ctx, 1, 10))
	assert.Equal(t, int64(1), f.registrations(t, 10))

	details, err := f.store.SlotsDetailed(ctx, f.passID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Algorithm Design", details[0].EventName)
	require.NotNil(t, details[0].Department)
}

func TestPostgresUniqueViolationsBecomeConflicts(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	require.NoError(t, f.insertSlot(ctx, 1, 10))

	// Same slot number.
	err := f.insertSlot(ctx, 1, 11)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// Same event on another slot.
	err = f.insertSlot(ctx, 2, 10)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// The failed transactions rolled back wholly: counter unchanged.
	assert.Equal(t, int64(1), f.registrations(t, 10))
	assert.Equal(t, int64(0), f.registrations(t, 11))
}

func TestPostgresWithPassLockUnknownPass(t *testing.T) {
	f := newPGFixture(t)
	err := f.store.WithPassLock(context.Background(), uuid.New(), func(ctx context.Context, tx pass.SlotTx) error {
		t.Fatal("callback must not run for an unknown pass")
		return nil
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresMarkVerifiedCAS(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	swapped, err := f.store.MarkVerified(ctx, f.passID)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = f.store.MarkVerified(ctx, f.passID)
	require.NoError(t, err)
	assert.False(t, swapped, "second CAS must report no transition")
}

func TestPostgresConcurrentSlotInsertOneWinner(t *testing.T) {
	f := newPGFixture(t)

	var g errgroup.Group
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		eventID := int64(10 + i)
		g.Go(func() error {
			results[i] = f.insertSlot(context.Background(), 1, eventID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1), f.registrations(t, 10)+f.registrations(t, 11))
}
