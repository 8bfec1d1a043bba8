// Package directory holds the catalog of schedulable activities. Rows are
// upserted by the periodic sync job and read by the slot allocator; this
// subsystem never deletes them.
package directory

// EventType classifies a catalog event.
type EventType string

const (
	TypeTechnical    EventType = "technical"
	TypeNonTechnical EventType = "non-technical"
	TypeWorkshop     EventType = "workshop"
)

// Department is a scoping tag for events and staff.
type Department struct {
	ID   int64
	Name string
}

// Event is a schedulable activity from the upstream catalog, keyed by its
// external id. Registrations is a derived counter maintained transactionally
// by the slot allocator; it is never computed lazily on the hot path.
type Event struct {
	ExternalID    int64
	Name          string
	Department    *int64
	Type          EventType
	Cost          *int64
	Registrations int64
}
