// Package apperrors defines the error taxonomy shared by the pipeline and the
// query layer.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrQueueClosed  = errors.New("queue is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports malformed query or filter input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransientStoreError wraps a failure of the queue or a store that is worth retrying.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientStoreError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient returns true if err is a transient store error.
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
