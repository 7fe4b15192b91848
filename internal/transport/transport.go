// Package transport defines the contract with the underlying wire
// protocol implementation. The session manager treats the transport as a
// black box: it opens an attempt with credentials and a client
// fingerprint, then consumes lifecycle events until the attempt closes.
//
// The real transport binding lives outside this module; the package
// ships a scripted Fake for tests and for the dry-run mode of the CLI.
package transport

import (
	"context"

	"github.com/blacksky-md/bslink/internal/fingerprint"
)

// Disconnect status codes emitted by the remote service on stream close.
// The classifier matches these first and falls back to message text for
// transports that do not surface a numeric code.
const (
	StatusLoggedOut          = 401
	StatusForbidden          = 403
	StatusClientOutdated     = 405
	StatusConnectionLost     = 408
	StatusRateLimited        = 429
	StatusConnectionReplaced = 440
	StatusBadSession         = 500
	StatusServiceUnavailable = 503
	StatusRestartRequired    = 515
)

// Transport opens connection attempts against the remote service.
type Transport interface {
	// Open starts one connection attempt. It returns a Handle whose
	// event channel delivers the attempt's lifecycle events in emission
	// order, ending with a ClosedEvent. Credentials may be nil for a
	// fresh (unregistered) session.
	Open(ctx context.Context, credentials []byte, fp fingerprint.Descriptor) (Handle, error)
}

// Handle represents one open connection attempt.
type Handle interface {
	// Events returns the attempt's lifecycle event stream. The channel
	// is closed after the terminal ClosedEvent has been delivered.
	Events() <-chan Event

	// RequestPairingCode asks the service for a numeric pairing code for
	// the given phone number (digits only, no leading +). Callable only
	// after a PairingReadyEvent has been emitted; earlier calls fail.
	RequestPairingCode(ctx context.Context, phoneNumber string) (string, error)

	// Close tears down the attempt. Safe to call multiple times.
	Close() error
}

// Event is a transport lifecycle event. Exactly one terminal ClosedEvent
// ends every attempt, whether the close was remote or local.
type Event interface {
	isTransportEvent()
}

// CodeReadyEvent carries a scannable login code payload. Each emission
// supersedes the previous one; payloads are short-lived.
type CodeReadyEvent struct {
	Payload string
}

// PairingReadyEvent signals that the attempt has reached the
// connecting-but-pre-authenticated point where RequestPairingCode is
// permitted. Waiting for this signal, rather than a fixed timer, is what
// keeps the pairing flow race-free.
type PairingReadyEvent struct{}

// OpenedEvent signals a fully established, authenticated connection.
// Resumed is true when existing credentials were accepted without a
// handshake.
type OpenedEvent struct {
	Resumed bool
}

// CredentialsUpdateEvent carries a fresh opaque credential blob that
// must be persisted before the session may be treated as resumable.
type CredentialsUpdateEvent struct {
	Credentials []byte
}

// ClosedEvent signals the end of the attempt. StatusCode is one of the
// Status* constants, or 0 when the transport reports no code.
type ClosedEvent struct {
	StatusCode int
	Message    string
}

func (CodeReadyEvent) isTransportEvent()         {}
func (PairingReadyEvent) isTransportEvent()      {}
func (OpenedEvent) isTransportEvent()            {}
func (CredentialsUpdateEvent) isTransportEvent() {}
func (ClosedEvent) isTransportEvent()            {}
