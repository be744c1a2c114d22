package llm

import (
	"errors"
	"fmt"
)

// ErrorKind separates failures a caller handles differently.
type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindRateLimited   ErrorKind = "rate_limited"
	KindTransient     ErrorKind = "transient"
)

var (
	ErrNotConfigured = errors.New("llm not configured")
	ErrRateLimited   = errors.New("llm rate limited")
	ErrTransient     = errors.New("llm unavailable")
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm %s (%s): %v", e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNotConfigured:
		return target == ErrNotConfigured
	case KindRateLimited:
		return target == ErrRateLimited
	case KindTransient:
		return target == ErrTransient
	}
	return false
}
