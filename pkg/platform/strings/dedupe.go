// Package strings provides small string-slice utilities shared across the
// configuration and identifier layers.
package strings

import "strings"

// DedupeAndTrim trims whitespace, drops empties and removes duplicates from
// a slice, preserving first-seen order. Used when splitting comma-separated
// configuration values.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with lowercasing, for identifier lists
// that compare case-insensitively (forbidden usernames, collision sets).
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
