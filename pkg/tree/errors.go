package tree

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from content-tree operations.
//
// These are business rule errors (cycle detected, permission denied, etc.)
// as opposed to infrastructure errors (disk failure, corrupted value).
// Infrastructure errors are wrapped and returned as-is; callers that need to
// classify them check for ErrIOError.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// ID identifies the node (or edge) the error relates to, if any
	ID string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is reports whether target is a StoreError with the same code, so
// errors.Is(err, &StoreError{Code: ErrCycleDetected}) works on wrapped errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ErrorCode represents the category of a content-tree error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested node or edge doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrPermissionDenied indicates the acting user lacks the required right
	ErrPermissionDenied

	// ErrCycleDetected indicates a new edge would make a node its own ancestor
	ErrCycleDetected

	// ErrInvalidPlacement indicates the child cannot live under that parent
	// Examples: child under a leaf, second primary parent, folder in a notebook
	ErrInvalidPlacement

	// ErrNotDeletable indicates a node in a deletion subtree is blocked
	// Examples: signed record, cross-link the user cannot unshare
	ErrNotDeletable

	// ErrSignedRecordConflict indicates a restore would overwrite signed content
	ErrSignedRecordConflict

	// ErrStaleState indicates an optimistic concurrency conflict
	// The caller's copy of the node is older than the stored one
	ErrStaleState

	// ErrAlreadyExists indicates the node being created already exists
	ErrAlreadyExists

	// ErrNotDeleted indicates a restore was requested for a live node
	ErrNotDeleted

	// ErrInvalidArgument indicates invalid parameters were provided
	ErrInvalidArgument

	// ErrIOError indicates the backing store failed
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrCycleDetected:
		return "CycleDetected"
	case ErrInvalidPlacement:
		return "InvalidPlacement"
	case ErrNotDeletable:
		return "NotDeletable"
	case ErrSignedRecordConflict:
		return "SignedRecordConflict"
	case ErrStaleState:
		return "StaleState"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotDeleted:
		return "NotDeleted"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// NewError builds a StoreError.
func NewError(code ErrorCode, id fmt.Stringer, format string, args ...any) *StoreError {
	e := &StoreError{Code: code, Message: fmt.Sprintf(format, args...)}
	if id != nil {
		e.ID = id.String()
	}
	return e
}

// NewNotFoundError reports a missing node.
func NewNotFoundError(id NodeID) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: "node not found", ID: id.String()}
}

// NewPermissionDeniedError reports a failed permission check.
func NewPermissionDeniedError(user UserID, right string, id NodeID) *StoreError {
	return &StoreError{
		Code:    ErrPermissionDenied,
		Message: fmt.Sprintf("user %q lacks %s permission", user, right),
		ID:      id.String(),
	}
}

// NewStaleStateError reports an optimistic concurrency conflict.
func NewStaleStateError(id NodeID, expected, current uint64) *StoreError {
	return &StoreError{
		Code:    ErrStaleState,
		Message: fmt.Sprintf("stale node version (expected %d, current %d)", expected, current),
		ID:      id.String(),
	}
}

// CodeOf extracts the ErrorCode from err. The second return is false when err
// is not (and does not wrap) a StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code, true
	}
	return 0, false
}

// IsCode reports whether err is (or wraps) a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
