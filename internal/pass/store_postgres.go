package pass

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"passgate/internal/directory"
	"passgate/pkg/platform/sentinel"
)

// PostgresStore persists passes, slots, and receipts in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const passColumns = `id, user_email, payment_id, payment_method, verified, issued, created_at`

func scanPass(row pgx.Row) (*Pass, error) {
	var p Pass
	err := row.Scan(&p.ID, &p.UserEmail, &p.PaymentID, &p.PaymentMethod, &p.Verified, &p.Issued, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan pass: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) PassByID(ctx context.Context, id uuid.UUID) (*Pass, error) {
	return scanPass(s.db.QueryRow(ctx,
		`SELECT `+passColumns+` FROM passes WHERE id = $1`, id))
}

func (s *PostgresStore) SlotsDetailed(ctx context.Context, passID uuid.UUID) ([]SlotDetail, error) {
	rows, err := s.db.Query(ctx,
		`SELECT s.pass_id, s.slot_no, s.event_id, s.attended, s.assigned_at,
		        e.name, e.department_id
		 FROM slots s
		 JOIN events e ON s.event_id = e.external_id
		 WHERE s.pass_id = $1
		 ORDER BY s.slot_no`,
		passID,
	)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []SlotDetail
	for rows.Next() {
		var d SlotDetail
		if err := rows.Scan(&d.PassID, &d.SlotNo, &d.EventID, &d.Attended, &d.AssignedAt, &d.EventName, &d.Department); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, d)
	}
	return slots, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes`
	var (
		conds []string
		args  []any
	)
	if filter.Verified != nil {
		args = append(args, *filter.Verified)
		conds = append(conds, fmt.Sprintf("verified = $%d", len(args)))
	}
	if filter.PaymentMethod != "" {
		args = append(args, filter.PaymentMethod)
		conds = append(conds, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *p)
	}
	return passes, rows.Err()
}

func (s *PostgresStore) CreateWithReceipt(ctx context.Context, p *Pass, r *Receipt) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO receipts (payment_id, method, amount, paid_on)
		 VALUES ($1, $2, $3, $4)`,
		r.PaymentID, r.Method, r.Amount, r.PaidOn,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", translateConstraint(err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO passes (`+passColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserEmail, p.PaymentID, p.PaymentMethod, p.Verified, p.Issued, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", translateConstraint(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateConstraint(err))
	}
	return nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE passes SET verified = TRUE WHERE id = $1 AND verified = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) WithPassLock(ctx context.Context, passID uuid.UUID, fn func(ctx context.Context, tx SlotTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock serializes all slot mutations against this pass. Concurrent
	// callers block here until the first transaction resolves.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM passes WHERE id = $1 FOR UPDATE`, passID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock pass: %w", err)
	}

	if err := fn(ctx, &pgSlotTx{tx: tx, passID: passID}); err != nil {
		return translateConstraint(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateConstraint(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// translateConstraint maps a unique-violation from a lost race to the
// conflict sentinel instead of propagating a raw storage error.
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	return err
}

type pgSlotTx struct {
	tx     pgx.Tx
	passID uuid.UUID
}

func (t *pgSlotTx) Slots(ctx context.Context) ([]Slot, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT pass_id, slot_no, event_id, attended, assigned_at
		 FROM slots WHERE pass_id = $1 ORDER BY slot_no`,
		t.passID,
	)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.PassID, &s.SlotNo, &s.EventID, &s.Attended, &s.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (t *pgSlotTx) Event(ctx context.Context, externalID int64) (*directory.Event, error) {
	var (
		event directory.Event
		typ   string
	)
	err := t.tx.QueryRow(ctx,
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
	event.Type = directory.EventType(typ)
	return &event, nil
}

func (t *pgSlotTx) InsertSlot(ctx context.Context, slot Slot) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO slots (pass_id, slot_no, event_id, attended, assigned_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		slot.PassID, slot.SlotNo, slot.EventID, slot.Attended, slot.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (t *pgSlotTx) DeleteSlot(ctx context.Context, slotNo int) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM slots WHERE pass_id = $1 AND slot_no = $2`,
		t.passID, slotNo,
	)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *pgSlotTx) SetAttended(ctx context.Context, slotNo int, attended bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE slots SET attended = $3 WHERE pass_id = $1 AND slot_no = $2`,
		t.passID, slotNo, attended,
	)
	if err != nil {
		return fmt.Errorf("set attended: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *pgSlotTx) AdjustRegistrations(ctx context.Context, eventID int64, delta int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET registrations = GREATEST(registrations + $2, 0)
		 WHERE external_id = $1`,
		eventID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust registrations: %w", err)
	}
	return nil
}
