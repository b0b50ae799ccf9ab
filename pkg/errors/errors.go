package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Broker-specific errors

var (
	// ErrAuth indicates the broker rejected the login handshake
	ErrAuth = errors.New("broker authentication failed")

	// ErrSessionNotFound indicates no active broker session for the client
	ErrSessionNotFound = errors.New("no active session")

	// ErrRateLimitExceeded indicates API rate limit exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Chain-specific errors

var (
	// ErrCatalogLoad indicates the instrument master could not be fetched or parsed
	ErrCatalogLoad = errors.New("instrument catalog load failed")

	// ErrNoExpiryAvailable indicates the catalog has no future expiry for an underlying
	ErrNoExpiryAvailable = errors.New("no future expiry available")

	// ErrUnknownSeries indicates an (underlying, expiry) pair absent from the catalog
	ErrUnknownSeries = errors.New("unknown option series")

	// ErrNoSpotPrice indicates the spot price could not be resolved and no prior value exists
	ErrNoSpotPrice = errors.New("spot price unavailable")
)

// WebSocket-specific errors

var (
	// ErrWSNotConnected indicates WebSocket is not connected
	ErrWSNotConnected = errors.New("websocket not connected")

	// ErrWSSubscriptionFailed indicates WebSocket subscription failed
	ErrWSSubscriptionFailed = errors.New("websocket subscription failed")

	// ErrWSMaxReconnectAttempts indicates max reconnection attempts reached
	ErrWSMaxReconnectAttempts = errors.New("max websocket reconnection attempts reached")

	// ErrSubscriptionClosed indicates the client subscription is already torn down
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
