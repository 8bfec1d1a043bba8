package directory

import "context"

// Store is the catalog persistence surface.
type Store interface {
	EventByExternalID(ctx context.Context, externalID int64) (*Event, error)
	// ListEvents returns events, optionally restricted to one department.
	ListEvents(ctx context.Context, departmentID *int64) ([]Event, error)
	DepartmentIDByName(ctx context.Context, name string) (int64, error)
	// UpsertEvent merges name/department/type/cost keyed by external id.
	// The registrations counter is never touched by an upsert.
	UpsertEvent(ctx context.Context, event Event) error
}

// Recounter rebuilds the derived registrations counters from the slot rows.
// Operational escape hatch for counter drift; not part of any hot path.
type Recounter interface {
	RecountRegistrations(ctx context.Context) error
}
