package username

import (
	"context"
	"strings"
)

// Source answers whether an identifier is already in use somewhere. The
// directory is always a source; deployments that never delete registry
// correlation records add those as a second source so identifiers of
// long-gone accounts are never reissued.
type Source interface {
	Taken(ctx context.Context, candidate string) (bool, error)
}

// MultiSource reports a candidate as taken when any source does. A source
// failure fails the whole check; guessing "free" on a partial answer risks
// assigning a duplicate identifier.
type MultiSource []Source

func (m MultiSource) Taken(ctx context.Context, candidate string) (bool, error) {
	for _, source := range m {
		taken, err := source.Taken(ctx, candidate)
		if err != nil {
			return false, err
		}
		if taken {
			return true, nil
		}
	}
	return false, nil
}

// TakenFuncOf adapts sources to the generator's TakenFunc.
func TakenFuncOf(sources ...Source) TakenFunc {
	multi := MultiSource(sources)
	return func(ctx context.Context, candidate string) (bool, error) {
		return multi.Taken(ctx, candidate)
	}
}

// StaticSource is a fixed identifier set, compared case-insensitively.
// Useful for tests and for seeding reserved names from configuration.
type StaticSource map[string]struct{}

// NewStaticSource lowercases and dedupes the given identifiers.
func NewStaticSource(identifiers ...string) StaticSource {
	s := make(StaticSource, len(identifiers))
	for _, id := range identifiers {
		s[strings.ToLower(id)] = struct{}{}
	}
	return s
}

func (s StaticSource) Taken(_ context.Context, candidate string) (bool, error) {
	_, ok := s[strings.ToLower(candidate)]
	return ok, nil
}
