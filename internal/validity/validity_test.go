package validity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "dirsync/pkg/domain-errors"
)

type timedRecord struct {
	name     string
	interval Interval
}

func ptr(t time.Time) *time.Time { return &t }

func interval(r timedRecord) Interval { return r.interval }

func TestIntervalContains(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval Interval
		want     bool
	}{
		{"open both ends", Interval{}, true},
		{"started in the past", Interval{Start: ptr(now.Add(-time.Hour))}, true},
		{"starts exactly now", Interval{Start: ptr(now)}, true},
		{"starts in the future", Interval{Start: ptr(now.Add(time.Hour))}, false},
		{"ends in the future", Interval{End: ptr(now.Add(time.Hour))}, true},
		{"ends exactly now", Interval{End: ptr(now)}, false},
		{"ended in the past", Interval{End: ptr(now.Add(-time.Hour))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.interval.Contains(now))
		})
	}
}

func TestCurrentOrLatestSingleRecord(t *testing.T) {
	now := time.Now()
	// A single record wins even if its interval has ended.
	record := timedRecord{name: "only", interval: Interval{End: ptr(now.Add(-time.Hour))}}

	got, err := CurrentOrLatest([]timedRecord{record}, interval, now)
	require.NoError(t, err)
	assert.Equal(t, "only", got.name)
}

func TestCurrentOrLatestPicksCurrent(t *testing.T) {
	now := time.Now()
	records := []timedRecord{
		{name: "expired", interval: Interval{End: ptr(now.Add(-time.Hour))}},
		{name: "current", interval: Interval{Start: ptr(now.Add(-time.Hour)), End: ptr(now.Add(time.Hour))}},
		{name: "future", interval: Interval{Start: ptr(now.Add(time.Hour))}},
	}

	got, err := CurrentOrLatest(records, interval, now)
	require.NoError(t, err)
	assert.Equal(t, "current", got.name)
}

func TestCurrentOrLatestFallsBackToLatestEnd(t *testing.T) {
	now := time.Now()
	records := []timedRecord{
		{name: "old", interval: Interval{End: ptr(now.Add(-3 * time.Hour))}},
		{name: "newer", interval: Interval{End: ptr(now.Add(-time.Hour))}},
		{name: "oldest", interval: Interval{End: ptr(now.Add(-5 * time.Hour))}},
	}

	got, err := CurrentOrLatest(records, interval, now)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.name)
}

func TestCurrentOrLatestOpenEndedWinsFallback(t *testing.T) {
	now := time.Now()
	future := ptr(now.Add(time.Hour))
	records := []timedRecord{
		// Neither is current: one starts in the future with no end, the
		// other starts even later with a closed end.
		{name: "open", interval: Interval{Start: future}},
		{name: "closed", interval: Interval{Start: ptr(now.Add(2 * time.Hour)), End: ptr(now.Add(3 * time.Hour))}},
	}

	got, err := CurrentOrLatest(records, interval, now)
	require.NoError(t, err)
	assert.Equal(t, "open", got.name)
}

func TestCurrentOrLatestAmbiguous(t *testing.T) {
	now := time.Now()
	records := []timedRecord{
		{name: "a", interval: Interval{Start: ptr(now.Add(-time.Hour))}},
		{name: "b", interval: Interval{}},
	}

	_, err := CurrentOrLatest(records, interval, now)
	require.Error(t, err)
	assert.Equal(t, derrors.CodeAmbiguousValidity, derrors.CodeOf(err))
}

func TestCurrentOrLatestEmpty(t *testing.T) {
	_, err := CurrentOrLatest(nil, interval, time.Now())
	require.Error(t, err)
	assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))
}
