package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"passgate/pkg/platform/sentinel"
)

// PostgresStore persists the catalog in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EventByExternalID(ctx context.Context, externalID int64) (*Event, error) {
	var (
		event Event
		typ   string
	)
	err := s.db.QueryRow(ctx,
		`SELECT external_id, name, department_id, event_type, cost, registrations
		 FROM events WHERE external_id = $1`,
		externalID,
	).Scan(&event.ExternalID, &event.Name, &event.Department, &typ, &event.Cost, &event.Registrations)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	event.Type = EventType(typ)
	return &event, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, departmentID *int64) ([]Event, error) {
	query := `SELECT external_id, name, department_id, event_type, cost, registrations
		 FROM events`
	args := []any{}
	if departmentID != nil {
		query += ` WHERE department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event Event
			typ   string
		)
		if err := rows.Scan(&event.ExternalID, &event.Name, &event.Department, &typ, &event.Cost, &event.Registrations); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Type = EventType(typ)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) DepartmentIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM departments WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("get department: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpsertEvent(ctx context.Context, event Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (external_id, name, department_id, event_type, cost)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id)
		 DO UPDATE SET
		   name = EXCLUDED.name,
		   department_id = EXCLUDED.department_id,
		   event_type = EXCLUDED.event_type,
		   cost = EXCLUDED.cost`,
		event.ExternalID, event.Name, event.Department, string(event.Type), event.Cost,
	)
	if err != nil {
		return fmt.Errorf("upsert event %d: %w", event.ExternalID, err)
	}
	return nil
}

// RecountRegistrations rebuilds every registrations counter from the slot
// rows in one statement.
func (s *PostgresStore) RecountRegistrations(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`UPDATE events e
		 SET registrations = COALESCE(sub.cnt, 0)
		 FROM (SELECT event_id, COUNT(*) AS cnt FROM slots GROUP BY event_id) sub
		 WHERE e.external_id = sub.event_id`)
	if err != nil {
		return fmt.Errorf("recount registrations: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE events e
		 SET registrations = 0
		 WHERE NOT EXISTS (SELECT 1 FROM slots s WHERE s.event_id = e.external_id)`)
	if err != nil {
		return fmt.Errorf("zero orphan registrations: %w", err)
	}
	return nil
}
