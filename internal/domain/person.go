package domain

import (
	"github.com/google/uuid"

	"dirsync/internal/validity"
)

// Person is a read-only snapshot of a registry person. The registry owns the
// record; the engine never mutates it.
type Person struct {
	UUID uuid.UUID
	// SecondaryKey is the shared identifier (e.g. a national id number)
	// usable to match the person across both systems without a correlation
	// record. Empty when the registry holds none.
	SecondaryKey string
	GivenName    string
	Surname      string
}

// NameParts splits the person's name into the parts the identifier generator
// consumes: given name, up to three middle names, then the surname. The
// original split of the given-name field is preserved so double first names
// feed the middle-name pattern positions.
func (p Person) NameParts() []string {
	parts := splitWords(p.GivenName, 4)
	return append(parts, p.Surname)
}

func splitWords(s string, limit int) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	if len(words) > limit {
		words = words[:limit]
	}
	if len(words) == 0 {
		words = []string{""}
	}
	return words
}

// CorrelationRecord links one registry person to one directory entry. The
// UserKey is the stringified directory unique id. Multiple records may exist
// per person over time; at most one per user-key should be current.
type CorrelationRecord struct {
	ID         uuid.UUID
	PersonUUID uuid.UUID
	UserKey    string
	Valid      validity.Interval
}
