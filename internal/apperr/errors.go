// Package apperr defines the error taxonomy shared across orgcal packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrMalformedEvent = errors.New("malformed event")
	ErrSyncInProgress = fmt.Errorf("sync already in progress: %w", ErrConflict)
)

// ConfigurationError reports a missing or invalid setting. It is fatal and is
// raised before any network call is made.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a ConfigurationError for field.
func NewConfigurationError(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigurationError{Field: field, Err: err}
}

// RemoteError reports a fault response or a malformed/missing payload from the
// remote schedule service. Payload names the offending document or record.
type RemoteError struct {
	Action  string
	Payload string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Payload == "" {
		return fmt.Sprintf("remote %s: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("remote %s: %s: %v", e.Action, e.Payload, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err is (or wraps) a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
