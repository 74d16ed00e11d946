package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dirsync/internal/domain"
)

// Directory is the read side of the directory service the resolver needs.
// Implementations page internally; callers see complete result sets.
type Directory interface {
	// SearchEqual returns every entry whose attribute equals value,
	// fetching the requested attributes.
	SearchEqual(ctx context.Context, attribute, value string, attrs []string) ([]domain.Entry, error)
	// ByUniqueID reads one entry by its immutable unique id, returning
	// sentinel.ErrNotFound when the id no longer resolves.
	ByUniqueID(ctx context.Context, uniqueID string, attrs []string) (domain.Entry, error)
}

// Registry is the query/write surface of the authoritative person registry.
// Persons are read-only; correlation records are the only thing the engine
// creates or ends.
type Registry interface {
	PersonByUUID(ctx context.Context, id uuid.UUID) (domain.Person, error)
	PersonUUIDsBySecondaryKey(ctx context.Context, key string) ([]uuid.UUID, error)
	PersonUUIDsByCorrelationUserKey(ctx context.Context, userKey string) ([]uuid.UUID, error)
	CorrelationRecords(ctx context.Context, person uuid.UUID) ([]domain.CorrelationRecord, error)
	CreateCorrelationRecord(ctx context.Context, record domain.CorrelationRecord) error
	EndCorrelationRecord(ctx context.Context, id uuid.UUID, at time.Time) error
}
