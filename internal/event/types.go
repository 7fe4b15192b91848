// Package event defines event types for decoupling components in bslink.
// These events enable communication between the session manager, presenters,
// and other consumers without requiring direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.connected", "handshake.code_ready")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session State Events
// -----------------------------------------------------------------------------

// State represents the session lifecycle state.
// Mirrors session.State for decoupling.
type State string

const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateAwaitingHandshake State = "awaiting_handshake"
	StateConnected         State = "connected"
	StateDisconnected      State = "disconnected"
	StateFailed            State = "failed"
)

// StateChangedEvent is emitted on every session state transition.
type StateChangedEvent struct {
	baseEvent
	SessionID     string // Session whose state changed
	PreviousState State  // State before the transition
	CurrentState  State  // State after the transition
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(sessionID string, previous, current State) StateChangedEvent {
	return StateChangedEvent{
		baseEvent:     newBaseEvent("session.state_changed"),
		SessionID:     sessionID,
		PreviousState: previous,
		CurrentState:  current,
	}
}

// ConnectedEvent is emitted when the transport reaches the open state.
type ConnectedEvent struct {
	baseEvent
	SessionID   string // Session that connected
	Resumed     bool   // Whether stored credentials were reused (no handshake)
	Fingerprint string // Display name of the client identity used
}

// NewConnectedEvent creates a ConnectedEvent.
func NewConnectedEvent(sessionID string, resumed bool, fingerprint string) ConnectedEvent {
	return ConnectedEvent{
		baseEvent:   newBaseEvent("session.connected"),
		SessionID:   sessionID,
		Resumed:     resumed,
		Fingerprint: fingerprint,
	}
}

// DisconnectedEvent is emitted when the transport closes, after the
// disconnect has been classified.
type DisconnectedEvent struct {
	baseEvent
	SessionID  string // Session that disconnected
	StatusCode int    // Raw transport status code
	Message    string // Raw transport close message
	Reason     string // Classified reason (e.g. "rate_limited")
	WillRetry  bool   // Whether a reconnect is scheduled
}

// NewDisconnectedEvent creates a DisconnectedEvent.
func NewDisconnectedEvent(sessionID string, statusCode int, message, reason string, willRetry bool) DisconnectedEvent {
	return DisconnectedEvent{
		baseEvent:  newBaseEvent("session.disconnected"),
		SessionID:  sessionID,
		StatusCode: statusCode,
		Message:    message,
		Reason:     reason,
		WillRetry:  willRetry,
	}
}

// RetryScheduledEvent is emitted when a reconnect attempt has been scheduled.
type RetryScheduledEvent struct {
	baseEvent
	SessionID   string        // Session being reconnected
	Attempt     int           // Attempt number about to run (1-based)
	Delay       time.Duration // Backoff delay before the attempt
	Fingerprint string        // Display name of the identity the attempt will use
	Rotated     bool          // Whether the fingerprint differs from the failed attempt
}

// NewRetryScheduledEvent creates a RetryScheduledEvent.
func NewRetryScheduledEvent(sessionID string, attempt int, delay time.Duration, fingerprint string, rotated bool) RetryScheduledEvent {
	return RetryScheduledEvent{
		baseEvent:   newBaseEvent("session.retry_scheduled"),
		SessionID:   sessionID,
		Attempt:     attempt,
		Delay:       delay,
		Fingerprint: fingerprint,
		Rotated:     rotated,
	}
}

// FailedEvent is emitted when the session reaches the terminal failed state.
type FailedEvent struct {
	baseEvent
	SessionID string // Session that failed
	Reason    string // Classified reason (e.g. "logged_out", "attempts_exhausted")
}

// NewFailedEvent creates a FailedEvent.
func NewFailedEvent(sessionID, reason string) FailedEvent {
	return FailedEvent{
		baseEvent: newBaseEvent("session.failed"),
		SessionID: sessionID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Handshake Events
// -----------------------------------------------------------------------------

// CodeReadyEvent is emitted when the transport issues a scannable login code.
// Each emission supersedes the previous payload.
type CodeReadyEvent struct {
	baseEvent
	SessionID string // Session performing the handshake
	Payload   string // Opaque code payload for the presentation layer
}

// NewCodeReadyEvent creates a CodeReadyEvent.
func NewCodeReadyEvent(sessionID, payload string) CodeReadyEvent {
	return CodeReadyEvent{
		baseEvent: newBaseEvent("handshake.code_ready"),
		SessionID: sessionID,
		Payload:   payload,
	}
}

// PairingCodeEvent is emitted when the transport issues a numeric pairing code.
type PairingCodeEvent struct {
	baseEvent
	SessionID   string // Session performing the handshake
	Code        string // Short alphanumeric pairing code
	PhoneNumber string // Target phone number (digits only)
}

// NewPairingCodeEvent creates a PairingCodeEvent.
func NewPairingCodeEvent(sessionID, code, phoneNumber string) PairingCodeEvent {
	return PairingCodeEvent{
		baseEvent:   newBaseEvent("handshake.pairing_code"),
		SessionID:   sessionID,
		Code:        code,
		PhoneNumber: phoneNumber,
	}
}

// HandshakeFailedEvent is emitted when a handshake operation fails without
// taking down the session (e.g. pairing code requested outside a valid
// window). It surfaces what would otherwise be an invisible internal error.
type HandshakeFailedEvent struct {
	baseEvent
	SessionID string // Session performing the handshake
	Error     string // Human-readable failure description
}

// NewHandshakeFailedEvent creates a HandshakeFailedEvent.
func NewHandshakeFailedEvent(sessionID, errMsg string) HandshakeFailedEvent {
	return HandshakeFailedEvent{
		baseEvent: newBaseEvent("handshake.failed"),
		SessionID: sessionID,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Credential Events
// -----------------------------------------------------------------------------

// CredentialsSavedEvent is emitted after a credential update has been
// durably persisted. Reconnects may treat the session as resumable only
// after observing this event for the current attempt.
type CredentialsSavedEvent struct {
	baseEvent
	SessionID string // Session whose credentials were saved
}

// NewCredentialsSavedEvent creates a CredentialsSavedEvent.
func NewCredentialsSavedEvent(sessionID string) CredentialsSavedEvent {
	return CredentialsSavedEvent{
		baseEvent: newBaseEvent("credentials.saved"),
		SessionID: sessionID,
	}
}

// CredentialsErasedEvent is emitted when a session's credentials are removed,
// either by an explicit logout or by an external actor deleting the files.
type CredentialsErasedEvent struct {
	baseEvent
	SessionID string // Session whose credentials were erased
	External  bool   // True if the erasure happened outside this process
}

// NewCredentialsErasedEvent creates a CredentialsErasedEvent.
func NewCredentialsErasedEvent(sessionID string, external bool) CredentialsErasedEvent {
	return CredentialsErasedEvent{
		baseEvent: newBaseEvent("credentials.erased"),
		SessionID: sessionID,
		External:  external,
	}
}
