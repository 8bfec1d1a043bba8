// Package identity issues and verifies staff identity tokens and owns the
// authorization policy applied to every write operation.
package identity

import (
	"fmt"
)

// Role classifies a staff identity.
type Role string

const (
	RoleVolunteer  Role = "volunteer"
	RoleEventAdmin Role = "event_admin"
	RoleDeptAdmin  Role = "dept_admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole validates a role string coming from storage or a token.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleVolunteer, RoleEventAdmin, RoleDeptAdmin, RoleSuperAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is an authenticated staff identity. A nil Department means the actor
// is central (unscoped); a non-nil Department binds the actor to that
// department for every resource-level policy check.
type Actor struct {
	Email      string
	Role       Role
	Department *int64
}

// IsCentral reports whether the actor acts without department restriction.
func (a Actor) IsCentral() bool { return a.Department == nil }

// Admin is a staff account as stored.
type Admin struct {
	Email        string
	PasswordHash string
	Role         Role
	Department   *int64
}
