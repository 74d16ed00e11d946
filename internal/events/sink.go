package events

import (
	"context"

	"dirsync/internal/domain"
)

// Publisher is the produce side the sink needs.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

// EntrySink turns changed directory entries into entry events. Keying by
// unique id keeps all events about one entry ordered.
type EntrySink struct {
	publisher Publisher
	topic     string
}

func NewEntrySink(publisher Publisher, topic string) *EntrySink {
	return &EntrySink{publisher: publisher, topic: topic}
}

func (s *EntrySink) EntryChanged(ctx context.Context, entry domain.Entry) error {
	return s.publisher.PublishJSON(ctx, s.topic, entry.UniqueID, EntryEvent{
		UniqueID: entry.UniqueID,
		DN:       entry.DN,
	})
}
