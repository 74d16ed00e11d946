// Package domainerrors carries the reconciliation error taxonomy. Every
// failure a resolution can produce maps to exactly one code, and the code
// decides whether the event pipeline should redeliver the message later or
// drop it as terminal.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeAmbiguousCandidate means discrimination found two or more
	// equally-ranked directory entries. The ambiguity may resolve once
	// in-flight changes settle, so this is retryable.
	CodeAmbiguousCandidate Code = "ambiguous_candidate"
	// CodeAmbiguousValidity means two or more validity intervals overlap
	// "now" for the same record set. Upstream data repair may fix it, so
	// this is retryable.
	CodeAmbiguousValidity Code = "ambiguous_validity"
	// CodeNoCorrelationKey means a directory entry may not be created for
	// the person because nothing links the two systems. Terminal.
	CodeNoCorrelationKey Code = "no_correlation_key"
	// CodeExhaustedGeneration means every identifier pattern was probed
	// without finding a free name. Terminal; requires a policy change.
	CodeExhaustedGeneration Code = "exhausted_generation"
	// CodeInvalidInput means the input itself is malformed (e.g. a
	// secondary key that cannot be a national id). Terminal.
	CodeInvalidInput Code = "invalid_input"
	// CodeInternal covers infrastructure failures. Retryable.
	CodeInternal Code = "internal"
)

// Error is a domain error with a code, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the domain code from err, walking the wrap chain.
// Errors without a domain code report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the event pipeline should redeliver the message
// that produced err. Ambiguity and infrastructure failures may resolve on
// their own; the terminal codes never will.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeAmbiguousCandidate, CodeAmbiguousValidity, CodeInternal:
		return true
	default:
		return false
	}
}
