package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and directory/registry
// adapters return these (optionally wrapped) so services can translate them
// into domain errors.
//
// These represent factual states about resources, not decisions:
// - ErrNotFound: entity does not exist in the store or directory
// - ErrConflict: unique constraint violated (identifier already assigned)
// - ErrUnavailable: backing service temporarily unreachable
//
// For decision failures (ambiguity, exhaustion, bad input), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
