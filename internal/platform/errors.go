package platform

import (
	"errors"
)

// Error taxonomy for gateway calls. Adapters wrap every failure in *Error so
// callers can branch with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient platform error")
)

// Error records which gateway operation failed and how it is classified.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewError wraps err as a classified gateway error. A nil kind is treated as transient.
func NewError(op string, kind, err error) error {
	if kind == nil {
		kind = ErrTransient
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the classification and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsPermissionDenied reports whether err was rejected by the platform ACL or role hierarchy.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether the target of err vanished.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// KindOf returns a short label for log fields.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}
