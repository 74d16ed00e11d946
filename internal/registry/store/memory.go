// Package store persists the registry mirror: persons replicated from the
// authoritative registry's event stream, and the correlation records the
// engine itself owns. The memory store backs tests and single-node
// deployments; the postgres store is the production variant.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dirsync/internal/domain"
	"dirsync/pkg/platform/sentinel"
)

// Memory is an in-memory registry store. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	persons map[uuid.UUID]domain.Person
	records map[uuid.UUID]domain.CorrelationRecord
}

func NewMemory() *Memory {
	return &Memory{
		persons: make(map[uuid.UUID]domain.Person),
		records: make(map[uuid.UUID]domain.CorrelationRecord),
	}
}

func (m *Memory) UpsertPerson(_ context.Context, person domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons[person.UUID] = person
	return nil
}

func (m *Memory) DeletePerson(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(m.persons, id)
	return nil
}

func (m *Memory) PersonByUUID(_ context.Context, id uuid.UUID) (domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	person, ok := m.persons[id]
	if !ok {
		return domain.Person{}, sentinel.ErrNotFound
	}
	return person, nil
}

func (m *Memory) PersonUUIDsBySecondaryKey(_ context.Context, key string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uuid.UUID
	for _, person := range m.persons {
		if person.SecondaryKey != "" && person.SecondaryKey == key {
			ids = append(ids, person.UUID)
		}
	}
	return ids, nil
}

func (m *Memory) PersonUUIDsByCorrelationUserKey(_ context.Context, userKey string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, record := range m.records {
		if record.UserKey != userKey {
			continue
		}
		if _, ok := seen[record.PersonUUID]; ok {
			continue
		}
		seen[record.PersonUUID] = struct{}{}
		ids = append(ids, record.PersonUUID)
	}
	return ids, nil
}

func (m *Memory) CorrelationRecords(_ context.Context, person uuid.UUID) ([]domain.CorrelationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CorrelationRecord
	for _, record := range m.records {
		if record.PersonUUID == person {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *Memory) CreateCorrelationRecord(_ context.Context, record domain.CorrelationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	m.records[record.ID] = record
	return nil
}

func (m *Memory) EndCorrelationRecord(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	end := at
	record.Valid.End = &end
	m.records[id] = record
	return nil
}
