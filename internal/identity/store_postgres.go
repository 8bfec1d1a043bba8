package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"passgate/pkg/platform/sentinel"
)

// PostgresStore reads staff accounts from the admins table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	var (
		admin Admin
		role  string
	)
	err := s.db.QueryRow(ctx,
		`SELECT email, password_hash, role, department_id FROM admins WHERE email = $1`,
		email,
	).Scan(&admin.Email, &admin.PasswordHash, &role, &admin.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}

	admin.Role, err = ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("admin %s: %w", admin.Email, err)
	}
	return &admin, nil
}
