// Package event provides a pub-sub event bus for decoupled inter-component
// communication in bslink.
//
// This package enables loose coupling between the session manager and its
// consumers (CLI output, TUI presenter, operator tooling) by allowing them
// to communicate through events rather than direct method calls. Components
// can publish events without knowing who will receive them, and subscribe
// to events without knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// The package defines several categories of events:
//
// Session Lifecycle:
//   - [StateChangedEvent]: Emitted on every state machine transition
//   - [ConnectedEvent]: Emitted when the transport opens
//   - [DisconnectedEvent]: Emitted when the transport closes, with classification
//   - [RetryScheduledEvent]: Emitted when a reconnect is scheduled
//   - [FailedEvent]: Emitted when the session fails terminally
//
// Handshake:
//   - [CodeReadyEvent]: Emitted when a scannable login code is issued
//   - [PairingCodeEvent]: Emitted when a numeric pairing code is issued
//   - [HandshakeFailedEvent]: Emitted when a handshake operation fails non-fatally
//
// Credentials:
//   - [CredentialsSavedEvent]: Emitted after a durable credential persist
//   - [CredentialsErasedEvent]: Emitted after logout or external erasure
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("handshake.code_ready", func(e event.Event) {
//	    ready := e.(event.CodeReadyEvent)
//	    render(ready.Payload)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewConnectedEvent("primary", true, "Chrome (Linux)"))
//
//	// Unsubscribe when done
//	id := bus.Subscribe("session.disconnected", handler)
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - session.state_changed, session.connected, session.disconnected,
//     session.retry_scheduled, session.failed
//   - handshake.code_ready, handshake.pairing_code, handshake.failed
//   - credentials.saved, credentials.erased
package event
