package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends audit events to the audit_log table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_log (actor, action, pass_id, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.Actor, event.Action, event.PassID, event.Detail, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
