// Package celeval is the production discriminator evaluator, backed by CEL.
// Policy expressions come from operator configuration and are evaluated
// against two bindings: `id` (the directory unique id, a string) and `value`
// (the discriminator field value, a string or null when absent).
package celeval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"dirsync/internal/discriminator"
)

// Evaluator compiles expressions on first use and caches the programs.
// Policies are small and static, so the cache never needs eviction.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New constructs an evaluator with the discriminator bindings declared.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("value", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// EvalBool implements discriminator.Evaluator.
func (e *Evaluator) EvalBool(_ context.Context, expr string, candidate discriminator.Candidate) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	var value any
	if candidate.Value != nil {
		value = *candidate.Value
	}
	out, _, err := prg.Eval(map[string]any{
		"id":    candidate.ID,
		"value": value,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not produce a bool", expr)
	}
	return result, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	e.cache[expr] = prg
	return prg, nil
}
