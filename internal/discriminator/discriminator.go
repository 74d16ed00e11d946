// Package discriminator picks one directory entry among several candidates
// for the same registry person. The policy is operator configuration: a
// priority list of "who wins" rules evaluated first-match, failing loudly on
// ties instead of silently picking one.
package discriminator

import (
	"context"
	"fmt"

	derrors "dirsync/pkg/domain-errors"
)

// Mode selects the discrimination algorithm.
type Mode string

const (
	// ModeNone requires at most one candidate; two is already a tie.
	ModeNone Mode = "none"
	// ModeExclude qualifies candidates whose field value is absent or not
	// on the disallowed list.
	ModeExclude Mode = "exclude"
	// ModeInclude treats each policy value as an equality predicate in
	// priority order.
	ModeInclude Mode = "include"
	// ModeTemplate treats each policy value as a boolean expression over
	// the candidate's id and field value, in priority order.
	ModeTemplate Mode = "template"
)

// Policy is the operator-supplied discrimination configuration, passed
// explicitly instead of living in ambient settings.
type Policy struct {
	Mode Mode
	// Field is the directory attribute candidate values were read from.
	// Informational to the algorithm itself; the caller performs the read.
	Field string
	// Values is the ordered rule list, index 0 being the highest priority.
	Values []string
}

// Candidate pairs a directory unique id with its discriminator field value.
// A nil Value means the attribute is absent on the entry.
type Candidate struct {
	ID    string
	Value *string
}

// Evaluator evaluates a boolean expression against one candidate's bindings.
// Injected so the engine stays testable with canned predicates and so no
// expression language is embedded here.
type Evaluator interface {
	EvalBool(ctx context.Context, expr string, candidate Candidate) (bool, error)
}

// Select applies the policy to the candidates and returns the single winner,
// or nil when no candidate qualifies. Ties fail with an ambiguous-candidate
// error; they indicate either mid-flight external changes or a policy that
// needs another rule, and both are for the operator or a retry to resolve.
func Select(ctx context.Context, candidates []Candidate, policy Policy, eval Evaluator) (*Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	switch policy.Mode {
	case ModeNone, "":
		if len(candidates) > 1 {
			return nil, derrors.Newf(derrors.CodeAmbiguousCandidate,
				"%d candidates but no discriminator policy configured", len(candidates))
		}
		return &candidates[0], nil
	case ModeExclude:
		return selectExclude(candidates, policy.Values)
	case ModeInclude:
		return selectTiered(ctx, candidates, equalityPredicates(policy.Values))
	case ModeTemplate:
		if eval == nil {
			return nil, derrors.New(derrors.CodeInvalidInput, "template discrimination requires an evaluator")
		}
		return selectTiered(ctx, candidates, templatePredicates(policy.Values, eval))
	default:
		return nil, derrors.Newf(derrors.CodeInvalidInput, "unknown discriminator mode %q", policy.Mode)
	}
}

func selectExclude(candidates []Candidate, disallowed []string) (*Candidate, error) {
	blocked := make(map[string]struct{}, len(disallowed))
	for _, v := range disallowed {
		blocked[v] = struct{}{}
	}

	var winner *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Value != nil {
			if _, ok := blocked[*c.Value]; ok {
				continue
			}
		}
		if winner != nil {
			return nil, derrors.Newf(derrors.CodeAmbiguousCandidate,
				"multiple candidates pass the exclude filter (%s, %s)", winner.ID, c.ID)
		}
		winner = c
	}
	return winner, nil
}

// predicate reports whether a candidate matches one rule tier.
type predicate func(ctx context.Context, c Candidate) (bool, error)

func equalityPredicates(values []string) []predicate {
	preds := make([]predicate, len(values))
	for i, want := range values {
		preds[i] = func(_ context.Context, c Candidate) (bool, error) {
			return c.Value != nil && *c.Value == want, nil
		}
	}
	return preds
}

func templatePredicates(exprs []string, eval Evaluator) []predicate {
	preds := make([]predicate, len(exprs))
	for i, expr := range exprs {
		preds[i] = func(ctx context.Context, c Candidate) (bool, error) {
			return eval.EvalBool(ctx, expr, c)
		}
	}
	return preds
}

// selectTiered evaluates predicates in priority order and stops at the first
// tier with any match. One match wins; several in the same tier is a tie and
// never falls through to lower-priority tiers.
func selectTiered(ctx context.Context, candidates []Candidate, tiers []predicate) (*Candidate, error) {
	for tier, pred := range tiers {
		var winner *Candidate
		for i := range candidates {
			ok, err := pred(ctx, candidates[i])
			if err != nil {
				return nil, derrors.Wrap(err, derrors.CodeInvalidInput,
					fmt.Sprintf("evaluating discriminator rule %d", tier))
			}
			if !ok {
				continue
			}
			if winner != nil {
				return nil, derrors.Newf(derrors.CodeAmbiguousCandidate,
					"discriminator rule %d matches multiple candidates (%s, %s)", tier, winner.ID, candidates[i].ID)
			}
			winner = &candidates[i]
		}
		if winner != nil {
			return winner, nil
		}
	}
	return nil, nil
}
