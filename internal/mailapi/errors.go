package mailapi

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure for the engine's propagation policy
type Kind int

const (
	// KindTransient covers network and 5xx failures; retry is user-triggered
	KindTransient Kind = iota
	// KindAuth is a 401; handled uniformly by forced logout unless the caller
	// opted out (task polling)
	KindAuth
	// KindValidation is a request rejected before or by the server for
	// malformed input
	KindValidation
	// KindNotFound means the referenced resource no longer exists
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// Error is a classified transport error
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a classified transport error
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrKind extracts the Kind of err, defaulting to KindTransient for
// unclassified errors so unknown failures stay retryable.
func ErrKind(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuth
}

// IsNotFound reports whether err means the resource is gone
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsValidation reports whether err is a rejected-input failure
func IsValidation(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindValidation
}
