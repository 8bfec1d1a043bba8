//go:build integration

package directory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passgate/internal/directory"
	"passgate/pkg/platform/sentinel"
	"passgate/pkg/testutil/containers"
)

func TestPostgresUpsertPreservesRegistrations(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	store := directory.NewPostgresStore(pc.Pool)

	var deptID int64
	require.NoError(t, pc.Pool.QueryRow(ctx,
		`INSERT INTO departments (name) VALUES ('ECE') RETURNING id`).Scan(&deptID))

	cost := int64(150)
	require.NoError(t, store.UpsertEvent(ctx, directory.Event{
		ExternalID: 10, Name: "Quiz Night", Department: &deptID,
		Type: directory.TypeNonTechnical, Cost: &cost,
	}))

	_, err := pc.Pool.Exec(ctx, `UPDATE events SET registrations = 5 WHERE external_id = 10`)
	require.NoError(t, err)

	// Re-sync with a new name; the counter must survive.
	require.NoError(t, store.UpsertEvent(ctx, directory.Event{
		ExternalID: 10, Name: "Quiz Night Finals", Department: &deptID,
		Type: directory.TypeNonTechnical, Cost: &cost,
	}))

	event, err := store.EventByExternalID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Quiz Night Finals", event.Name)
	assert.Equal(t, int64(5), event.Registrations)
}

func TestPostgresDepartmentLookup(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	store := directory.NewPostgresStore(pc.Pool)

	var deptID int64
	require.NoError(t, pc.Pool.QueryRow(ctx,
		`INSERT INTO departments (name) VALUES ('MECH') RETURNING id`).Scan(&deptID))

	got, err := store.DepartmentIDByName(ctx, "MECH")
	require.NoError(t, err)
	assert.Equal(t, deptID, got)

	_, err = store.DepartmentIDByName(ctx, "NOPE")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresRecountRegistrations(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	store := directory.NewPostgresStore(pc.Pool)

	var deptID int64
	require.NoError(t, pc.Pool.QueryRow(ctx,
		`INSERT INTO departments (name) VALUES ('CSE_SSN') RETURNING id`).Scan(&deptID))
	_, err := pc.Pool.Exec(ctx,
		`INSERT INTO events (external_id, name, department_id, event_type, registrations) VALUES
		 (10, 'Algorithm Design', $1, 'technical', 99),
		 (11, 'Quiz Night', $1, 'non-technical', 7)`, deptID)
	require.NoError(t, err)

	// One real slot on event 10; event 11 has none.
	_, err = pc.Pool.Exec(ctx, `INSERT INTO receipts (payment_id, method, amount, paid_on)
		 VALUES ('00000000-0000-0000-0000-000000000001', 'cash', 300, now())`)
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, `INSERT INTO passes (id, user_email, payment_id, payment_method)
		 VALUES ('00000000-0000-0000-0000-000000000002', 'p1@example.com',
		         '00000000-0000-0000-0000-000000000001', 'cash')`)
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, `INSERT INTO slots (pass_id, slot_no, event_id)
		 VALUES ('00000000-0000-0000-0000-000000000002', 1, 10)`)
	require.NoError(t, err)

	require.NoError(t, store.RecountRegistrations(ctx))

	event, err := store.EventByExternalID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), event.Registrations)

	event, err = store.EventByExternalID(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(0), event.Registrations)
}
