// Package username mints collision-free directory identifiers from person
// names. Patterns describe which letters of which name parts build the base
// ("F123LX": first-name letter, three middle-name letters, last-name letter,
// free digit), probed against every configured collision source until a free
// identifier turns up.
package username

import (
	"context"
	"strconv"
	"strings"

	platformstrings "dirsync/pkg/platform/strings"

	derrors "dirsync/pkg/domain-errors"
)

// Policy is the operator-supplied generation configuration.
type Policy struct {
	// Patterns is the ordered list of generation patterns, tried first to
	// last. Allowed letters: F (first name), 1-3 (middle names), L (last
	// name), X (free digit).
	Patterns []string
	// Forbidden lists bases that must never be generated, compared with any
	// trailing digits ignored.
	Forbidden []string
	// Replacements folds characters before generation, e.g. "ø" -> "oe".
	// Anything still outside a-z after folding is dropped.
	Replacements map[string]string
	// StripVowels removes vowels from every name part except the first
	// before rendering patterns.
	StripVowels bool
}

// TakenFunc reports whether a candidate identifier is already in use. It
// must consult every configured collision source and compare
// case-insensitively.
type TakenFunc func(ctx context.Context, candidate string) (bool, error)

// Generator renders policy patterns into free identifiers.
type Generator struct {
	policy    Policy
	forbidden map[string]struct{}
}

// NewGenerator validates the policy patterns up front so a bad deployment
// fails at startup rather than on the first create.
func NewGenerator(policy Policy) (*Generator, error) {
	for _, pattern := range policy.Patterns {
		if pattern == "" {
			return nil, derrors.New(derrors.CodeInvalidInput, "empty username pattern")
		}
		for _, r := range pattern {
			if !strings.ContainsRune("F123LX", r) {
				return nil, derrors.Newf(derrors.CodeInvalidInput,
					"pattern %q: letter %q not in F123LX", pattern, string(r))
			}
		}
	}
	forbidden := make(map[string]struct{})
	for _, base := range platformstrings.DedupeAndTrimLower(policy.Forbidden) {
		forbidden[base] = struct{}{}
	}
	return &Generator{policy: policy, forbidden: forbidden}, nil
}

// The digit suffix starts at 2: 0 and 1 read as the letters O and l in too
// many directory fonts, and the bare base (no digit) is expressed by
// patterns without an X.
const (
	lowestDigit  = 2
	highestDigit = 9
)

// Username returns the first free identifier any pattern yields for the
// given name parts (given name, then middle names, then surname).
// Patterns that need more letters than the name provides are skipped, not
// errors. When every pattern is exhausted the generation fails permanently.
func (g *Generator) Username(ctx context.Context, nameParts []string, taken TakenFunc) (string, error) {
	parts := g.normalize(nameParts)

	for _, pattern := range g.policy.Patterns {
		rendered, ok := renderPattern(parts, pattern)
		if !ok {
			continue
		}
		base := strings.ReplaceAll(rendered, "X", "")
		if _, bad := g.forbidden[base]; bad {
			continue
		}

		if !strings.Contains(rendered, "X") {
			inUse, err := taken(ctx, rendered)
			if err != nil {
				return "", derrors.Wrap(err, derrors.CodeInternal, "collision check failed")
			}
			if !inUse {
				return rendered, nil
			}
			continue
		}

		for digit := lowestDigit; digit <= highestDigit; digit++ {
			candidate := strings.ReplaceAll(rendered, "X", strconv.Itoa(digit))
			inUse, err := taken(ctx, candidate)
			if err != nil {
				return "", derrors.Wrap(err, derrors.CodeInternal, "collision check failed")
			}
			if !inUse {
				return candidate, nil
			}
		}
	}

	return "", derrors.New(derrors.CodeExhaustedGeneration, "no username pattern yields a free identifier")
}

// maxDisplayNameLen leaves room for a collision suffix under the directory's
// 64-character common-name limit.
const maxDisplayNameLen = 60

// DisplayName builds "<given> <surname>" from the name parts, dropping
// middle names (and finally truncating) to stay under the length limit, then
// probes "_2", "_3", ... on collision. Given-name-only input is valid.
func (g *Generator) DisplayName(ctx context.Context, nameParts []string, taken TakenFunc) (string, error) {
	var clean []string
	for _, part := range nameParts {
		if part != "" {
			clean = append(clean, part)
		}
	}
	if len(clean) == 0 {
		return "", derrors.New(derrors.CodeInvalidInput, "no name parts to build a display name from")
	}

	name := strings.Join(clean, " ")
	for len(name) > maxDisplayNameLen {
		if len(clean) <= 2 {
			name = name[:maxDisplayNameLen]
			break
		}
		// Drop the last middle name and retry.
		clean = append(clean[:len(clean)-2], clean[len(clean)-1])
		name = strings.Join(clean, " ")
	}

	candidate := name
	for counter := 2; counter < 1000; counter++ {
		inUse, err := taken(ctx, candidate)
		if err != nil {
			return "", derrors.Wrap(err, derrors.CodeInternal, "collision check failed")
		}
		if !inUse {
			return candidate, nil
		}
		candidate = name + "_" + strconv.Itoa(counter)
	}
	return "", derrors.New(derrors.CodeExhaustedGeneration, "display name suffix space exhausted")
}

// normalize folds each name part through the replacement table, lowercases
// it and drops anything outside a-z. With StripVowels set, vowels are
// removed from every part except the first.
func (g *Generator) normalize(nameParts []string) []string {
	out := make([]string, len(nameParts))
	for i, part := range nameParts {
		for from, to := range g.policy.Replacements {
			part = strings.ReplaceAll(part, from, to)
		}
		part = strings.ToLower(part)
		var b strings.Builder
		for _, r := range part {
			if r < 'a' || r > 'z' {
				continue
			}
			if g.policy.StripVowels && i > 0 && strings.ContainsRune("aeiouy", r) {
				continue
			}
			b.WriteRune(r)
		}
		out[i] = b.String()
	}
	return out
}

// renderPattern maps a pattern onto the name parts, producing the base
// string with X placeholders intact. Returns false when the pattern needs a
// name part (or a letter within one) the name does not have.
func renderPattern(parts []string, pattern string) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}

	// Positions into parts: F is the first part, 1-3 the middle parts,
	// L always the final part. -2 marks the X placeholder.
	const placeholder = -2
	positions := make([]int, 0, len(pattern))
	maxMiddle := -1
	usesLast := false
	for _, r := range pattern {
		switch r {
		case 'F':
			positions = append(positions, 0)
		case '1', '2', '3':
			idx := int(r - '0')
			positions = append(positions, idx)
			if idx > maxMiddle {
				maxMiddle = idx
			}
		case 'L':
			positions = append(positions, len(parts)-1)
			usesLast = true
		case 'X':
			positions = append(positions, placeholder)
		}
	}

	// Middle-name positions must leave room for the surname slot.
	if maxMiddle > len(parts)-2 {
		return "", false
	}
	if usesLast && parts[len(parts)-1] == "" {
		return "", false
	}

	var b strings.Builder
	offset := 0
	for i, pos := range positions {
		if i > 0 && pos == positions[i-1] {
			offset++
		} else {
			offset = 0
		}
		if pos == placeholder {
			b.WriteByte('X')
			continue
		}
		part := parts[pos]
		if offset >= len(part) {
			return "", false
		}
		b.WriteByte(part[offset])
	}
	return b.String(), true
}
