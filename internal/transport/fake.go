package transport

import (
	"context"
	"sync"

	bserr "github.com/blacksky-md/bslink/internal/errors"
	"github.com/blacksky-md/bslink/internal/fingerprint"
)

// Script configures the Fake's behavior for one Open call.
type Script struct {
	// OpenErr, when set, is returned from Open and no handle is created.
	OpenErr error

	// Events are emitted on the handle in order immediately after Open,
	// unless Hold is set.
	Events []Event

	// Hold suppresses automatic emission; the test drives the handle
	// via FakeHandle.Emit.
	Hold bool

	// PairingCode and PairingErr script RequestPairingCode.
	PairingCode string
	PairingErr  error
}

// OpenRecord captures the arguments of one Open call.
type OpenRecord struct {
	Credentials []byte
	Fingerprint fingerprint.Descriptor
}

// Fake is a scripted Transport for tests. Each Open call consumes the
// next Script; calls beyond the scripted count reuse the last script.
type Fake struct {
	mu      sync.Mutex
	scripts []Script
	opens   []OpenRecord
	handles []*FakeHandle
}

// NewFake creates a fake transport with the given per-attempt scripts.
func NewFake(scripts ...Script) *Fake {
	return &Fake{scripts: scripts}
}

// Open records the call and returns a handle driven by the next script.
func (f *Fake) Open(ctx context.Context, credentials []byte, fp fingerprint.Descriptor) (Handle, error) {
	f.mu.Lock()

	var script Script
	switch n := len(f.opens); {
	case n < len(f.scripts):
		script = f.scripts[n]
	case len(f.scripts) > 0:
		script = f.scripts[len(f.scripts)-1]
	}

	creds := append([]byte(nil), credentials...)
	f.opens = append(f.opens, OpenRecord{Credentials: creds, Fingerprint: fp})

	if script.OpenErr != nil {
		f.mu.Unlock()
		return nil, script.OpenErr
	}

	h := &FakeHandle{
		events:      make(chan Event, len(script.Events)+16),
		pairingCode: script.PairingCode,
		pairingErr:  script.PairingErr,
	}
	f.handles = append(f.handles, h)
	f.mu.Unlock()

	if !script.Hold {
		for _, e := range script.Events {
			h.Emit(e)
		}
	}
	return h, nil
}

// OpenCount returns the number of Open calls so far.
func (f *Fake) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

// Opens returns a copy of all recorded Open calls.
func (f *Fake) Opens() []OpenRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OpenRecord(nil), f.opens...)
}

// HandleAt returns the handle created by the i-th successful Open.
func (f *Fake) HandleAt(i int) *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

// FakeHandle is the handle type produced by Fake. Tests drive it with
// Emit and inspect pairing-code calls with PairingCalls.
type FakeHandle struct {
	mu           sync.Mutex
	events       chan Event
	streamClosed bool
	closed       bool
	pairingReady bool
	pairingCode  string
	pairingErr   error
	pairingCalls []string
}

// Events returns the handle's event stream.
func (h *FakeHandle) Events() <-chan Event {
	return h.events
}

// Emit delivers one event to the handle's stream. Emitting a ClosedEvent
// ends the stream; later emissions are dropped, mirroring a real
// transport whose callbacks go quiet after close.
func (h *FakeHandle) Emit(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.streamClosed {
		return
	}
	if _, ok := e.(PairingReadyEvent); ok {
		h.pairingReady = true
	}
	h.events <- e
	if _, ok := e.(ClosedEvent); ok {
		h.streamClosed = true
		close(h.events)
	}
}

// RequestPairingCode returns the scripted code once a PairingReadyEvent
// has been emitted. Earlier calls fail with ErrPairingNotReady. Every
// call is recorded, successful or not.
func (h *FakeHandle) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pairingCalls = append(h.pairingCalls, phoneNumber)
	if h.closed {
		return "", bserr.ErrConnectionClosed
	}
	if !h.pairingReady {
		return "", bserr.ErrPairingNotReady
	}
	if h.pairingErr != nil {
		return "", h.pairingErr
	}
	return h.pairingCode, nil
}

// Close marks the handle closed. It is idempotent and emits nothing: a
// locally initiated close has no disconnect cause to classify.
func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if !h.streamClosed {
		h.streamClosed = true
		close(h.events)
	}
	return nil
}

// PairingCalls returns the phone numbers passed to RequestPairingCode,
// in call order.
func (h *FakeHandle) PairingCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pairingCalls...)
}
