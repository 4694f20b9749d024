// Package errs provides the error type shared by every stage of the
// synchronization pipeline.
//
// Fatal pipeline failures are one of four kinds (declaration, introspection,
// diff inconsistency, planning). Plumbing failures from the database layer are
// mapped onto the connection/query kinds. Callers inspect errors through the
// Is* predicates instead of matching message text:
//
//	if errs.IsDeclaration(err) {
//	    fmt.Println("fix schema.yaml:", err)
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	ErrKindDeclaration
	ErrKindIntrospection
	ErrKindDiffInconsistency
	ErrKindPlanning
	ErrKindConnectionFailed
	ErrKindQueryFailed
	ErrKindInvalidInput
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindDeclaration:
		return "declaration"
	case ErrKindIntrospection:
		return "introspection"
	case ErrKindDiffInconsistency:
		return "diff_inconsistency"
	case ErrKindPlanning:
		return "planning"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the pipeline.
type Error struct {
	Kind    ErrKind
	Entity  string // fully qualified name of the offending entity, if any
	Message string
	Cause   error
	Cycle   []string // planning only: the operations forming the cycle, in order
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Kind)
	if e.Entity != "" {
		fmt.Fprintf(&b, "%s: ", e.Entity)
	}
	b.WriteString(e.Message)
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " (cycle: %s)", strings.Join(e.Cycle, " -> "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Declaration reports an inconsistent declared schema.
func Declaration(entity, format string, args ...any) *Error {
	return &Error{Kind: ErrKindDeclaration, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Introspection reports a catalog that could not be read.
func Introspection(msg string, cause error) *Error {
	return &Error{Kind: ErrKindIntrospection, Message: msg, Cause: cause}
}

// DiffInconsistency reports two entities of incompatible kinds sharing an identity key.
func DiffInconsistency(entity, format string, args ...any) *Error {
	return &Error{Kind: ErrKindDiffInconsistency, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Planning reports a dependency cycle that deferral could not break.
func Planning(msg string, cycle []string) *Error {
	return &Error{Kind: ErrKindPlanning, Message: msg, Cycle: cycle}
}

// --- Predicates ---

func IsDeclaration(err error) bool {
	return KindOf(err) == ErrKindDeclaration
}

func IsIntrospection(err error) bool {
	return KindOf(err) == ErrKindIntrospection
}

func IsDiffInconsistency(err error) bool {
	return KindOf(err) == ErrKindDiffInconsistency
}

func IsPlanning(err error) bool {
	return KindOf(err) == ErrKindPlanning
}

func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// KindOf extracts the outermost ErrKind in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
