package identity

import "context"

// Store looks up staff accounts. Accounts are provisioned out of band
// (seeding scripts); this subsystem only authenticates against them.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
}
