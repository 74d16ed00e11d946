package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirsync/internal/directory/cursor"
	"dirsync/internal/domain"
)

type fakeChanges struct {
	since   []time.Time
	entries []domain.Entry
	err     error
}

func (f *fakeChanges) ChangedSince(_ context.Context, since time.Time, _ []string) ([]domain.Entry, error) {
	f.since = append(f.since, since)
	return f.entries, f.err
}

type fakeSink struct {
	received []string
	failOn   string
}

func (f *fakeSink) EntryChanged(_ context.Context, entry domain.Entry) error {
	if entry.UniqueID == f.failOn {
		return errors.New("sink refused")
	}
	f.received = append(f.received, entry.UniqueID)
	return nil
}

var pollNow = time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

func newTestPoller(changes Changes, cursors cursor.Store, sink Sink) *Poller {
	return NewPoller(changes, cursors, sink, PollerConfig{
		Interval: time.Minute,
		Horizon:  time.Hour,
	}, WithPollerClock(func() time.Time { return pollNow }))
}

func TestPollOnceDeliversAndAdvancesCursor(t *testing.T) {
	changes := &fakeChanges{entries: []domain.Entry{
		{DN: "cn=a", UniqueID: "uid-a"},
		{DN: "cn=b", UniqueID: "uid-b"},
	}}
	cursors := cursor.NewMemory()
	sink := &fakeSink{}

	poller := newTestPoller(changes, cursors, sink)
	require.NoError(t, poller.pollOnce(context.Background()))

	assert.Equal(t, []string{"uid-a", "uid-b"}, sink.received)

	saved, err := cursors.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pollNow, saved)

	// First round had no cursor, so the horizon applied.
	require.Len(t, changes.since, 1)
	assert.Equal(t, pollNow.Add(-time.Hour), changes.since[0])

	// Second round resumes from the previous round's start.
	require.NoError(t, poller.pollOnce(context.Background()))
	require.Len(t, changes.since, 2)
	assert.Equal(t, pollNow, changes.since[1])
}

func TestPollOnceHoldsCursorOnSinkFailure(t *testing.T) {
	changes := &fakeChanges{entries: []domain.Entry{
		{DN: "cn=a", UniqueID: "uid-a"},
		{DN: "cn=b", UniqueID: "uid-b"},
	}}
	cursors := cursor.NewMemory()
	sink := &fakeSink{failOn: "uid-b"}

	poller := newTestPoller(changes, cursors, sink)
	require.NoError(t, poller.pollOnce(context.Background()))

	saved, err := cursors.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved.IsZero(), "cursor must not advance past an undelivered entry")
}

func TestPollOnceSearchFailure(t *testing.T) {
	changes := &fakeChanges{err: errors.New("directory unreachable")}
	poller := newTestPoller(changes, cursor.NewMemory(), &fakeSink{})

	assert.Error(t, poller.pollOnce(context.Background()))
}
