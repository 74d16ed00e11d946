// Package events is the engine's reconciliation pipeline: person events from
// the registry and entry events from the directory poller both funnel into
// the resolver, serialized per person so concurrent events cannot double-create.
package events

import (
	"github.com/google/uuid"
)

// PersonEvent announces that a registry person changed (created, updated or
// deleted). The consumer re-reads the person, so the payload only names it.
type PersonEvent struct {
	PersonUUID uuid.UUID `json:"person_uuid"`
}

// EntryEvent announces that a directory entry changed. The consumer re-reads
// the entry by its unique id; the DN is carried for logging only.
type EntryEvent struct {
	UniqueID string `json:"unique_id"`
	DN       string `json:"dn,omitempty"`
}
