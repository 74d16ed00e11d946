package celeval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirsync/internal/discriminator"
)

func str(s string) *string { return &s }

func TestEvalBool(t *testing.T) {
	eval, err := New()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		candidate discriminator.Candidate
		want      bool
	}{
		{"value equality", `value == "staff"`, discriminator.Candidate{ID: "a", Value: str("staff")}, true},
		{"value mismatch", `value == "staff"`, discriminator.Candidate{ID: "a", Value: str("external")}, false},
		{"length tier", `value != null && value.size() == 3`, discriminator.Candidate{ID: "a", Value: str("abc")}, true},
		{"null guard on absent value", `value != null && value.size() == 3`, discriminator.Candidate{ID: "a"}, false},
		{"absent value is null", `value == null`, discriminator.Candidate{ID: "a"}, true},
		{"id binding", `id.startsWith("entry-")`, discriminator.Candidate{ID: "entry-7"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvalBool(context.Background(), tt.expr, tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalBoolCompileError(t *testing.T) {
	eval, err := New()
	require.NoError(t, err)

	_, err = eval.EvalBool(context.Background(), `value ==`, discriminator.Candidate{ID: "a"})
	assert.Error(t, err)
}

func TestEvalBoolNonBoolResult(t *testing.T) {
	eval, err := New()
	require.NoError(t, err)

	_, err = eval.EvalBool(context.Background(), `id`, discriminator.Candidate{ID: "a"})
	assert.Error(t, err)
}

func TestProgramCacheReuse(t *testing.T) {
	eval, err := New()
	require.NoError(t, err)

	for range 3 {
		got, err := eval.EvalBool(context.Background(), `id == "x"`, discriminator.Candidate{ID: "x"})
		require.NoError(t, err)
		assert.True(t, got)
	}
	eval.mu.RLock()
	defer eval.mu.RUnlock()
	assert.Len(t, eval.cache, 1)
}
