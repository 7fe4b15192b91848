// Package errors provides centralized error definitions and error handling
// utilities for bslink. It defines domain-specific errors, semantic error
// types, error constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - TransportError: errors from the wire transport (network, protocol)
//   - PersistenceError: errors from the credential store
//   - HandshakeError: errors during the authentication handshake
//   - ConfigurationError: invalid configuration rejected before connecting
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewTransportError("stream closed", errors.ErrConnectionClosed).
//		WithSessionID("primary").WithStatusCode(440)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrLoggedOut) { ... }
//
//	var tErr *errors.TransportError
//	if errors.As(err, &tErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to operators (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionActive indicates a connection attempt is already in flight.
	ErrSessionActive = New("session already active")
	// ErrSessionClosed indicates the session has been stopped or failed terminally.
	ErrSessionClosed = New("session is closed")
	// ErrLoggedOut indicates the remote service invalidated the credentials.
	ErrLoggedOut = New("logged out by remote service")
	// ErrAttemptsExhausted indicates the reconnect attempt ceiling was reached.
	ErrAttemptsExhausted = New("reconnect attempts exhausted")
)

// Credential-related sentinel errors
var (
	// ErrNoCredentials indicates no stored credentials exist for a session.
	ErrNoCredentials = New("no stored credentials")
	// ErrCredentialsCorrupted indicates stored credential data failed to decode.
	ErrCredentialsCorrupted = New("credential data corrupted")
)

// Handshake-related sentinel errors
var (
	// ErrPairingNotReady indicates a pairing code was requested before the
	// transport signalled it is ready to issue one.
	ErrPairingNotReady = New("transport not ready for pairing")
	// ErrPairingAlreadyRequested indicates a second pairing code request was
	// made within the same connection attempt.
	ErrPairingAlreadyRequested = New("pairing code already requested")
	// ErrCodeExpired indicates a handshake code lapsed before it was used.
	ErrCodeExpired = New("handshake code expired")
)

// Transport-related sentinel errors
var (
	// ErrConnectionClosed indicates the transport closed the connection.
	ErrConnectionClosed = New("connection closed")
	// ErrConnectionReplaced indicates another client took over the session.
	ErrConnectionReplaced = New("connection replaced by another client")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LinkError is the base interface for all bslink errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type LinkError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to operators.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show operators.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TransportError represents errors from the wire transport.
//
// Example:
//
//	err := errors.NewTransportError("stream errored", errors.ErrConnectionClosed)
//	err = err.WithSessionID("primary").WithStatusCode(440)
type TransportError struct {
	baseError
	SessionID  string
	StatusCode int
}

// NewTransportError creates a new TransportError.
// Transport errors are retryable by default; the disconnect classifier
// decides the final policy.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		StatusCode: -1, // -1 indicates no status code was reported
	}
}

// WithSessionID adds a session ID to the error context.
func (e *TransportError) WithSessionID(id string) *TransportError {
	e.SessionID = id
	return e
}

// WithStatusCode adds the transport status code to the error context.
func (e *TransportError) WithStatusCode(code int) *TransportError {
	e.StatusCode = code
	return e
}

// WithSeverity sets the error severity.
func (e *TransportError) WithSeverity(s Severity) *TransportError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.StatusCode >= 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "transport error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("transport error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents errors from the credential store. A failed
// save must never be treated as a successful persist, so these errors are
// not retryable by default and carry Error severity.
//
// Example:
//
//	err := errors.NewPersistenceError("save failed", ioErr).WithSessionID("primary")
type PersistenceError struct {
	baseError
	SessionID string
	Path      string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *PersistenceError) WithSessionID(id string) *PersistenceError {
	e.SessionID = id
	return e
}

// WithPath adds the affected filesystem path to the error context.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// WithSeverity sets the error severity.
func (e *PersistenceError) WithSeverity(s Severity) *PersistenceError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "persistence error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("persistence error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// HandshakeError represents errors during the authentication handshake,
// such as a pairing code requested outside a valid window. These are
// surfaced as non-fatal events, never as state machine crashes.
//
// Example:
//
//	err := errors.NewHandshakeError("pairing request rejected", errors.ErrPairingNotReady)
//	err = err.WithSessionID("primary").WithMode("pairing_code")
type HandshakeError struct {
	baseError
	SessionID string
	Mode      string
}

// NewHandshakeError creates a new HandshakeError.
func NewHandshakeError(message string, cause error) *HandshakeError {
	return &HandshakeError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *HandshakeError) WithSessionID(id string) *HandshakeError {
	e.SessionID = id
	return e
}

// WithMode adds the auth mode to the error context.
func (e *HandshakeError) WithMode(mode string) *HandshakeError {
	e.Mode = mode
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *HandshakeError) WithRetryable(r bool) *HandshakeError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *HandshakeError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Mode != "" {
		parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	}

	prefix := "handshake error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("handshake error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *HandshakeError) Is(target error) bool {
	if _, ok := target.(*HandshakeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigurationError represents invalid configuration detected before any
// connection attempt. It fails Start() synchronously and never reaches the
// state machine.
//
// Example:
//
//	err := errors.NewConfigurationError("invalid phone number")
//	err = err.WithField("phone_number").WithValue("not-a-number")
type ConfigurationError struct {
	baseError
	Field string
	Value any
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ConfigurationError) WithField(field string) *ConfigurationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ConfigurationError) WithValue(value any) *ConfigurationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ConfigurationError) WithCause(cause error) *ConfigurationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "configuration error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("configuration error [%s]", strings.Join(parts, ", "))
	}

	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "primary")
//	fmt.Println(err) // "session 'primary' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("session ID cannot be empty")
//	err = err.WithField("sessionID").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for transport open", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for transport open (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing LinkError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    time.Sleep(delay)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var linkErr LinkError
	if As(err, &linkErr) {
		return linkErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to
// operators. This checks for:
//   - Errors implementing LinkError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, ValidationError, TimeoutError)
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var linkErr LinkError
	if As(err, &linkErr) {
		return linkErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &validation) || As(err, &timeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LinkError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var linkErr LinkError
	if As(err, &linkErr) {
		return linkErr.Severity()
	}

	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (TransportError, PersistenceError, HandshakeError, or ConfigurationError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	var persistenceErr *PersistenceError
	var handshakeErr *HandshakeError
	var configErr *ConfigurationError

	return As(err, &transportErr) || As(err, &persistenceErr) ||
		As(err, &handshakeErr) || As(err, &configErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to open transport")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to load session %s", sessionID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
