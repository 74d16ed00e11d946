// Package validity collapses lists of overlapping time-bounded records to
// "the current one". Employments, correlation records and addresses all carry
// validity intervals, and upstream data occasionally violates the
// non-overlap invariant; the selector surfaces that instead of guessing.
package validity

import (
	"time"

	derrors "dirsync/pkg/domain-errors"
)

// Interval is a half-open validity window. A nil Start means valid since the
// beginning of time, a nil End means open-ended. Start is inclusive, End is
// exclusive.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil && !t.Before(*iv.End) {
		return false
	}
	return true
}

// Ended reports whether the interval is already closed at time t.
func (iv Interval) Ended(t time.Time) bool {
	return iv.End != nil && !t.Before(*iv.End)
}

// CurrentOrLatest returns the single record whose interval contains now.
// With a single record it is returned as-is. With no current record the one
// with the latest end wins (open-ended counts as infinite), yielding the most
// recently expired or furthest-future record as the best-effort answer.
// Two or more current records signal an upstream consistency violation and
// fail with an ambiguous-validity error so the caller retries rather than
// guesses.
func CurrentOrLatest[T any](records []T, interval func(T) Interval, now time.Time) (T, error) {
	var zero T
	switch len(records) {
	case 0:
		return zero, derrors.New(derrors.CodeInvalidInput, "no records to select from")
	case 1:
		return records[0], nil
	}

	currentIdx := -1
	for i, record := range records {
		if !interval(record).Contains(now) {
			continue
		}
		if currentIdx >= 0 {
			return zero, derrors.New(derrors.CodeAmbiguousValidity, "multiple records are currently valid")
		}
		currentIdx = i
	}
	if currentIdx >= 0 {
		return records[currentIdx], nil
	}

	latest := records[0]
	for _, record := range records[1:] {
		if endsAfter(interval(record).End, interval(latest).End) {
			latest = record
		}
	}
	return latest, nil
}

// endsAfter reports whether end a is strictly later than end b, with nil
// meaning open-ended (infinitely late).
func endsAfter(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.After(*b)
}
