package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every subsystem. Check with errors.Is.
var (
	// ErrConfig marks a missing or invalid required setting.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound marks an expected upstream object that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrParse marks embedded state that is missing or malformed.
	ErrParse = errors.New("parse error")
	// ErrUnrecognizedRun marks a message fragment with an unknown shape.
	ErrUnrecognizedRun = errors.New("unrecognized message run")
	// ErrUpstreamQuota marks quota exhaustion on the discovery API.
	ErrUpstreamQuota = errors.New("upstream quota exceeded")
	// ErrTransport marks a network failure during fetch or publish.
	ErrTransport = errors.New("transport error")
	// ErrNotAvailable means the video has no chat replay. It is a normal outcome.
	ErrNotAvailable = errors.New("chat replay not available")
)

// ConfigError reports a required setting that is missing.
func ConfigError(key, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrConfig, key, reason)
}

// FieldError reports an invalid field on a request or record.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// UnrecognizedRunError is scoped to a single message; callers decide whether to skip it.
type UnrecognizedRunError struct {
	MessageID string
	Index     int
	Run       string
}

func (e *UnrecognizedRunError) Error() string {
	return fmt.Sprintf("message %s: run %d not recognized: %s", e.MessageID, e.Index, e.Run)
}

// Is lets errors.Is match the ErrUnrecognizedRun sentinel.
func (e *UnrecognizedRunError) Is(target error) bool {
	return target == ErrUnrecognizedRun
}

// QuotaError wraps the upstream API error that signalled quota exhaustion.
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUpstreamQuota, e.Err)
}

// Unwrap exposes both the sentinel and the original API error.
func (e *QuotaError) Unwrap() []error {
	return []error{ErrUpstreamQuota, e.Err}
}
