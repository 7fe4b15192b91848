// Package session implements the connection session manager: the state
// machine owning one long-lived authenticated session, the handshake
// flows that produce login artifacts, and the reconnect policy that
// reacts to classified disconnects.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blacksky-md/bslink/internal/backoff"
	"github.com/blacksky-md/bslink/internal/classify"
	"github.com/blacksky-md/bslink/internal/credstore"
	"github.com/blacksky-md/bslink/internal/errors"
	"github.com/blacksky-md/bslink/internal/event"
	"github.com/blacksky-md/bslink/internal/fingerprint"
	"github.com/blacksky-md/bslink/internal/logging"
	"github.com/blacksky-md/bslink/internal/transport"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateAwaitingHandshake State = "awaiting_handshake"
	StateConnected         State = "connected"
	StateDisconnected      State = "disconnected"
	StateFailed            State = "failed"
)

// pairingRequestTimeout bounds the transport's pairing-code call so a
// hung transport cannot pin a worker goroutine forever.
const pairingRequestTimeout = 30 * time.Second

// Options configures a Manager.
type Options struct {
	SessionID string
	Store     credstore.Store
	Transport transport.Transport
	Rotator   *fingerprint.Rotator
	Scheduler *backoff.Scheduler
	Bus       *event.Bus      // optional; created when nil
	Logger    *logging.Logger // optional
}

// Manager owns the authoritative state machine for one session. All
// transitions are serialized under a single mutex; subscribers observe
// them through the event bus. Events from a superseded transport
// attempt carry a stale epoch and are dropped.
type Manager struct {
	sessionID string
	store     credstore.Store
	transport transport.Transport
	rotator   *fingerprint.Rotator
	scheduler *backoff.Scheduler
	bus       *event.Bus
	logger    *logging.Logger

	mu          sync.Mutex
	state       State
	flow        handshakeFlow
	epoch       int
	attempt     int
	lastReason  classify.Reason
	fingerprint fingerprint.Descriptor
	credentials []byte
	artifact    *Artifact
	handle      transport.Handle
	retryTimer  *time.Timer
}

// NewManager creates a manager in StateIdle.
func NewManager(opts Options) (*Manager, error) {
	if opts.SessionID == "" {
		return nil, errors.NewConfigurationError("session ID is required").WithField("session_id")
	}
	if opts.Store == nil {
		return nil, errors.NewConfigurationError("credential store is required").WithField("store")
	}
	if opts.Transport == nil {
		return nil, errors.NewConfigurationError("transport is required").WithField("transport")
	}
	if opts.Rotator == nil {
		return nil, errors.NewConfigurationError("fingerprint rotator is required").WithField("rotator")
	}
	if opts.Scheduler == nil {
		return nil, errors.NewConfigurationError("backoff scheduler is required").WithField("scheduler")
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Manager{
		sessionID: opts.SessionID,
		store:     opts.Store,
		transport: opts.Transport,
		rotator:   opts.Rotator,
		scheduler: opts.Scheduler,
		bus:       bus,
		logger:    logger.WithSession(opts.SessionID),
		state:     StateIdle,
	}, nil
}

// Bus returns the event bus subscribers attach to.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

// Start begins connecting. For AuthPairingCode, phoneNumber is the
// pairing target; it is validated synchronously and a bad number never
// reaches the state machine. Start returns immediately; progress is
// reported through the bus. Starting an active session fails with
// ErrSessionActive.
func (m *Manager) Start(mode AuthMode, phoneNumber string) error {
	var flow handshakeFlow
	switch mode {
	case AuthCodeDisplay:
		flow = codeDisplayFlow{}
	case AuthPairingCode:
		f, err := newPairingCodeFlow(phoneNumber)
		if err != nil {
			return err
		}
		flow = f
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown auth mode %q", mode)).
			WithField("auth_mode").WithValue(string(mode))
	}

	m.mu.Lock()
	switch m.state {
	case StateIdle, StateFailed:
	default:
		m.mu.Unlock()
		return errors.ErrSessionActive
	}

	creds, err := m.store.Load(m.sessionID)
	if err != nil && !errors.Is(err, errors.ErrNoCredentials) {
		// Unreadable credentials must not be treated as resumable;
		// fall through to a fresh handshake.
		m.logger.Warn("stored credentials unusable, starting fresh", "error", err)
		creds = nil
	}

	m.flow = flow
	m.credentials = creds
	m.attempt = 0
	m.lastReason = ""
	m.artifact = nil
	m.fingerprint = m.rotator.Next()
	m.epoch++
	epoch := m.epoch
	prev := m.state
	m.state = StateConnecting
	fp := m.fingerprint
	m.mu.Unlock()

	m.logger.Info("session starting",
		"auth_mode", string(mode),
		"resumable", len(creds) > 0,
		"fingerprint", fp.String())
	m.bus.Publish(event.NewStateChangedEvent(m.sessionID, event.State(prev), event.StateConnecting))

	go m.runAttempt(epoch, creds, fp)
	return nil
}

// Stop closes any active transport and cancels a pending retry,
// returning to StateIdle. Credentials are left untouched so a later
// Start resumes. Stop is idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.epoch++ // orphan any in-flight attempt
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	handle := m.handle
	m.handle = nil
	m.artifact = nil
	prev := m.state
	m.state = StateIdle
	m.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	if prev != StateIdle {
		m.logger.Info("session stopped", "previous_state", string(prev))
		m.bus.Publish(event.NewStateChangedEvent(m.sessionID, event.State(prev), event.StateIdle))
	}
	return nil
}

// Logout stops the session, erases its credentials, and parks it in
// terminal StateFailed with reason logged_out. A fresh Start is
// required afterwards and will run a full handshake.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.epoch++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	handle := m.handle
	m.handle = nil
	m.artifact = nil
	m.credentials = nil
	m.lastReason = classify.ReasonLoggedOut
	prev := m.state
	m.state = StateFailed
	m.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}

	eraseErr := m.store.Erase(m.sessionID)
	if eraseErr != nil {
		m.logger.Error("failed to erase credentials on logout", "error", eraseErr)
	}

	m.logger.Info("session logged out")
	if prev != StateFailed {
		m.bus.Publish(event.NewStateChangedEvent(m.sessionID, event.State(prev), event.StateFailed))
	}
	m.bus.Publish(event.NewFailedEvent(m.sessionID, string(classify.ReasonLoggedOut)))
	return eraseErr
}

// Snapshot is a point-in-time read-only view of the session.
type Snapshot struct {
	SessionID            string
	State                State
	Attempt              int
	LastDisconnectReason classify.Reason
	Fingerprint          fingerprint.Descriptor
	Artifact             *Artifact
}

// Snapshot returns the session's current observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var artifact *Artifact
	if m.artifact != nil {
		a := *m.artifact
		artifact = &a
	}
	return Snapshot{
		SessionID:            m.sessionID,
		State:                m.state,
		Attempt:              m.attempt,
		LastDisconnectReason: m.lastReason,
		Fingerprint:          m.fingerprint,
		Artifact:             artifact,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// runAttempt opens one transport attempt and pumps its events into the
// state machine until the stream ends. It is the only goroutine that
// reads the attempt's event channel, which preserves emission order.
func (m *Manager) runAttempt(epoch int, creds []byte, fp fingerprint.Descriptor) {
	handle, err := m.transport.Open(context.Background(), creds, fp)
	if err != nil {
		// An open failure is a disconnect like any other; the
		// classifier decides whether it is worth retrying.
		m.handleClosed(epoch, statusCodeOf(err), err.Error())
		return
	}

	m.mu.Lock()
	if epoch != m.epoch {
		// Superseded by stop/logout/restart while dialing.
		m.mu.Unlock()
		_ = handle.Close()
		return
	}
	m.handle = handle
	m.mu.Unlock()

	for ev := range handle.Events() {
		m.handleTransportEvent(epoch, ev)
	}
}

// handleTransportEvent routes one transport event. A panic in any
// handler is caught and converted into an internal-error disconnect so
// a bug in event handling cannot kill the retry loop.
func (m *Manager) handleTransportEvent(epoch int, ev transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			snap := m.Snapshot()
			m.logger.Error("panic while handling transport event",
				"state", string(snap.State),
				"attempt", snap.Attempt,
				"panic", fmt.Sprint(r))
			m.handleClosed(epoch, 0, fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch e := ev.(type) {
	case transport.CodeReadyEvent:
		m.handleCodeReady(epoch, e)
	case transport.PairingReadyEvent:
		m.handlePairingReady(epoch)
	case transport.OpenedEvent:
		m.handleOpened(epoch, e)
	case transport.CredentialsUpdateEvent:
		m.handleCredentialsUpdate(epoch, e)
	case transport.ClosedEvent:
		m.handleClosed(epoch, e.StatusCode, e.Message)
	default:
		m.logger.Debug("ignoring unrecognized transport event", "event", fmt.Sprintf("%T", ev))
	}
}

func (m *Manager) handleCodeReady(epoch int, e transport.CodeReadyEvent) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logDroppedStale("code_ready")
		return
	}
	artifact := m.flow.OnCodeReady(e.Payload)
	if artifact == nil {
		m.mu.Unlock()
		return
	}
	m.artifact = artifact

	var events []event.Event
	if m.state == StateConnecting {
		m.state = StateAwaitingHandshake
		events = append(events,
			event.NewStateChangedEvent(m.sessionID, event.StateConnecting, event.StateAwaitingHandshake))
	}
	events = append(events, event.NewCodeReadyEvent(m.sessionID, e.Payload))
	m.mu.Unlock()

	m.logger.Info("login code issued")
	for _, ev := range events {
		m.bus.Publish(ev)
	}
}

func (m *Manager) handlePairingReady(epoch int) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logDroppedStale("pairing_ready")
		return
	}
	need := m.flow.NeedsPairingRequest()
	phone := m.flow.PhoneNumber()
	handle := m.handle
	m.mu.Unlock()

	if !need {
		m.logger.Debug("pairing code already requested for this attempt")
		return
	}
	if handle == nil {
		return
	}

	// The request blocks on the transport, so it runs off the event
	// path in its own goroutine.
	go m.requestPairingCode(epoch, handle, phone)
}

func (m *Manager) requestPairingCode(epoch int, handle transport.Handle, phone string) {
	ctx, cancel := context.WithTimeout(context.Background(), pairingRequestTimeout)
	defer cancel()

	code, err := handle.RequestPairingCode(ctx, phone)
	if err != nil {
		// Non-fatal: the attempt may still complete or close on its
		// own; surfaced to subscribers rather than crashing the loop.
		hsErr := errors.NewHandshakeError("pairing code request failed", err).
			WithSessionID(m.sessionID).WithMode(string(AuthPairingCode))
		m.logger.Warn("pairing code request failed", "error", hsErr)
		m.bus.Publish(event.NewHandshakeFailedEvent(m.sessionID, hsErr.Error()))
		return
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logDroppedStale("pairing_code")
		return
	}
	if m.state == StateConnected {
		// The attempt authenticated while the request was in flight; a
		// live connection never needs a code.
		m.mu.Unlock()
		m.logger.Debug("discarding pairing code issued after connect")
		return
	}
	m.artifact = &Artifact{
		Kind:        ArtifactPairingCode,
		Payload:     code,
		PhoneNumber: phone,
		IssuedAt:    time.Now(),
	}
	var events []event.Event
	if m.state == StateConnecting {
		m.state = StateAwaitingHandshake
		events = append(events,
			event.NewStateChangedEvent(m.sessionID, event.StateConnecting, event.StateAwaitingHandshake))
	}
	events = append(events, event.NewPairingCodeEvent(m.sessionID, code, phone))
	m.mu.Unlock()

	m.logger.Info("pairing code issued", "phone_number", phone)
	for _, ev := range events {
		m.bus.Publish(ev)
	}
}

func (m *Manager) handleOpened(epoch int, e transport.OpenedEvent) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logDroppedStale("opened")
		return
	}
	prev := m.state
	m.state = StateConnected
	m.attempt = 0
	m.lastReason = ""
	m.artifact = nil // a live connection never needs a code
	fp := m.fingerprint
	m.mu.Unlock()

	m.logger.Info("session connected", "resumed", e.Resumed, "fingerprint", fp.String())
	m.bus.Publish(event.NewStateChangedEvent(m.sessionID, event.State(prev), event.StateConnected))
	m.bus.Publish(event.NewConnectedEvent(m.sessionID, e.Resumed, fp.String()))
}

func (m *Manager) handleCredentialsUpdate(epoch int, e transport.CredentialsUpdateEvent) {
	m.mu.Lock()
	if epoch != m.epoch {
		// Refers to a superseded transport instance; applying it could
		// clobber newer credentials.
		m.mu.Unlock()
		m.logDroppedStale("credentials_update")
		return
	}
	m.mu.Unlock()

	if err := m.store.Save(m.sessionID, e.Credentials); err != nil {
		// The in-memory copy is not updated: an unflushed blob must
		// never back a "resumed" session.
		m.logger.Error("failed to persist credentials", "error", err)
		return
	}

	m.mu.Lock()
	if epoch == m.epoch {
		m.credentials = append([]byte(nil), e.Credentials...)
	}
	m.mu.Unlock()
	m.logger.Debug("credentials persisted")
}

func (m *Manager) handleClosed(epoch int, statusCode int, message string) {
	reason, decision := classify.Classify(statusCode, message)

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logDroppedStale("closed")
		return
	}
	m.handle = nil
	m.artifact = nil
	m.attempt++
	m.lastReason = reason
	attempt := m.attempt
	prev := m.state

	exhausted := decision.Retry && m.scheduler.Exhausted(attempt)
	willRetry := decision.Retry && !exhausted

	var events []event.Event
	m.state = StateDisconnected
	events = append(events,
		event.NewStateChangedEvent(m.sessionID, event.State(prev), event.StateDisconnected),
		event.NewDisconnectedEvent(m.sessionID, statusCode, message, string(reason), willRetry))

	var eraseCredentials bool
	switch {
	case !decision.Retry:
		// Terminal: retrying against invalidated credentials would
		// spin forever.
		m.state = StateFailed
		if reason == classify.ReasonLoggedOut {
			eraseCredentials = true
			m.credentials = nil
		}
		events = append(events,
			event.NewStateChangedEvent(m.sessionID, event.StateDisconnected, event.StateFailed),
			event.NewFailedEvent(m.sessionID, string(reason)))

	case exhausted:
		m.state = StateFailed
		events = append(events,
			event.NewStateChangedEvent(m.sessionID, event.StateDisconnected, event.StateFailed),
			event.NewFailedEvent(m.sessionID, errors.ErrAttemptsExhausted.Error()))

	default:
		rotated := decision.RotateFingerprint
		if rotated {
			m.fingerprint = m.rotator.Next()
		}
		var delay time.Duration
		if decision.RateLimited {
			delay = m.scheduler.NextDelayRateLimited(attempt - 1)
		} else {
			delay = m.scheduler.NextDelay(attempt - 1)
		}
		events = append(events,
			event.NewRetryScheduledEvent(m.sessionID, attempt, delay, m.fingerprint.String(), rotated))
		m.retryTimer = time.AfterFunc(delay, func() { m.retry(epoch) })
	}
	finalState := m.state
	m.mu.Unlock()

	m.logger.Warn("session disconnected",
		"status_code", statusCode,
		"message", message,
		"reason", string(reason),
		"attempt", attempt,
		"next_state", string(finalState))

	if eraseCredentials {
		if err := m.store.Erase(m.sessionID); err != nil {
			m.logger.Error("failed to erase credentials after remote logout", "error", err)
		}
	}
	for _, ev := range events {
		m.bus.Publish(ev)
	}
}

// retry fires when the backoff timer elapses. scheduledEpoch pins the
// retry to the disconnect that scheduled it: a stop, logout, or fresh
// start in the meantime bumps the epoch and the retry becomes a no-op.
func (m *Manager) retry(scheduledEpoch int) {
	m.mu.Lock()
	if m.epoch != scheduledEpoch || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.flow.Reset()
	m.epoch++
	epoch := m.epoch
	m.state = StateConnecting
	creds := m.credentials
	fp := m.fingerprint
	attempt := m.attempt
	m.mu.Unlock()

	m.logger.Info("reconnecting", "attempt", attempt, "fingerprint", fp.String())
	m.bus.Publish(event.NewStateChangedEvent(m.sessionID, event.StateDisconnected, event.StateConnecting))

	go m.runAttempt(epoch, creds, fp)
}

func (m *Manager) logDroppedStale(kind string) {
	m.logger.Debug("dropped stale transport event", "event", kind)
}

// statusCodeOf extracts a transport status code from an open error when
// one was attached; otherwise the classifier falls back to the message.
func statusCodeOf(err error) int {
	var te *errors.TransportError
	if errors.As(err, &te) && te.StatusCode >= 0 {
		return te.StatusCode
	}
	return 0
}
