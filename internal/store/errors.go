package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed store operation. The engine never branches on
// error strings; every backend maps its native failures onto these kinds.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindSchemaUnresolvable means no usable field mapping exists for a
	// collection; mutations against it are disabled.
	KindSchemaUnresolvable
	// KindUnknownField is a write rejection caused by a payload field the
	// collection does not declare. Triggers one schema re-resolution.
	KindUnknownField
	// KindConflict is "a document with this id already exists". For
	// deterministic relation ids this is a success path, not an error.
	KindConflict
	// KindNotFound is a read or delete against a missing document.
	KindNotFound
	// KindPersistenceFailed is any other write rejection.
	KindPersistenceFailed
	// KindNetworkUnavailable is a transport-level failure; worth retrying.
	KindNetworkUnavailable
	// KindUnauthenticated is a request without a usable session.
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindSchemaUnresolvable:
		return "schema_unresolvable"
	case KindUnknownField:
		return "unknown_field"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPersistenceFailed:
		return "persistence_failed"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Error is a classified store failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an operation name and a kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from err, following wrap chains.
// Transport errors that were never classified come back as network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetworkUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkUnavailable
	}
	return KindUnknown
}

// IsConflict reports whether err is a duplicate-id rejection.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsUnknownField reports whether err is an unknown-attribute rejection.
func IsUnknownField(err error) bool { return KindOf(err) == KindUnknownField }

// IsNotFound reports whether err is a missing-document failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsTransient reports whether the failure is worth presenting as "try again".
func IsTransient(err error) bool { return KindOf(err) == KindNetworkUnavailable }
