package directory

import (
	"context"
	"sync"

	"passgate/pkg/platform/sentinel"
)

// MemoryStore keeps the catalog in memory for unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[int64]Event
	departments map[string]int64
	nextDeptID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[int64]Event),
		departments: make(map[string]int64),
		nextDeptID:  1,
	}
}

// AddDepartment registers a department and returns its id.
func (s *MemoryStore) AddDepartment(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.departments[name]; ok {
		return id
	}
	id := s.nextDeptID
	s.nextDeptID++
	s.departments[name] = id
	return id
}

func (s *MemoryStore) EventByExternalID(_ context.Context, externalID int64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.events[externalID]; ok {
		return &event, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListEvents(_ context.Context, departmentID *int64) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		if departmentID != nil && (event.Department == nil || *event.Department != *departmentID) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *MemoryStore) DepartmentIDByName(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.departments[name]; ok {
		return id, nil
	}
	return 0, sentinel.ErrNotFound
}

func (s *MemoryStore) UpsertEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[event.ExternalID]; ok {
		event.Registrations = existing.Registrations
	} else {
		event.Registrations = 0
	}
	s.events[event.ExternalID] = event
	return nil
}

// AdjustRegistrations changes the derived counter, flooring at zero. Used by
// the memory pass store to mirror the transactional counter maintenance.
func (s *MemoryStore) AdjustRegistrations(_ context.Context, externalID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[externalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.Registrations += delta
	if event.Registrations < 0 {
		event.Registrations = 0
	}
	s.events[externalID] = event
	return nil
}

// SetRegistrations overwrites a counter directly; test helper for drift cases.
func (s *MemoryStore) SetRegistrations(externalID, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.events[externalID]; ok {
		event.Registrations = count
		s.events[externalID] = event
	}
}
