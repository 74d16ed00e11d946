package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
	assert.Equal(t, []string{"foo", "bar"}, got)
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"})
	assert.Equal(t, []string{"foo", "bar"}, got)
}

func TestDedupeEmptyInput(t *testing.T) {
	assert.Empty(t, DedupeAndTrim(nil))
}
