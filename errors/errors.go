// Package errors provides standardized error handling for the data logger.
// It classifies failures into the three categories the runtime reacts to:
// transient connectivity problems that reconnection absorbs, invalid input
// isolated to a single tag or configuration value, and fatal conditions that
// must stop a component.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors absorbed by retry/reconnect
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Session lifecycle errors
	ErrAlreadyConnected = errors.New("session already connected")
	ErrNotConnected     = errors.New("session not connected")
	ErrSessionClosed    = errors.New("session closed")
	ErrLivenessLost     = errors.New("session liveness lost")

	// Connectivity errors
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrConnectionTimeout   = errors.New("connection timeout")
	ErrSubscriptionFailed  = errors.New("subscription failed")

	// Resource contention
	ErrGateTimeout = errors.New("connection gate acquire timeout")

	// Per-tag errors
	ErrTagNotFound      = errors.New("tag not found")
	ErrBadQuality       = errors.New("bad quality")
	ErrNotNumeric       = errors.New("value is not numeric")
	ErrItemRejected     = errors.New("monitored item rejected")
	ErrInvalidAddress   = errors.New("invalid tag address")
	ErrReadTimeout      = errors.New("tag read timeout")
	ErrUnsupportedValue = errors.New("unsupported value type")

	// Configuration errors
	ErrNilConfig     = errors.New("nil configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrEndpointUnreachable) ||
		errors.Is(err, ErrLivenessLost) ||
		errors.Is(err, ErrGateTimeout) ||
		errors.Is(err, ErrReadTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unclassified transport errors usually surface as plain strings from
	// the vendor stacks; fall back to pattern matching.
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "refused", "network", "unreachable", "broken pipe", "temporary"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or configuration
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrNilConfig) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrNotNumeric) ||
		errors.Is(err, ErrUnsupportedValue)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return false
}

// Classify returns the error class for an error. Unknown errors default to
// transient so reconnection gets a chance to absorb them.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func newClassified(class ErrorClass, err error, component, method, action string) error {
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, err, component, method, action)
}
