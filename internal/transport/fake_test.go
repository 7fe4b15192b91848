package transport

import (
	"context"
	"errors"
	"testing"

	bserr "github.com/blacksky-md/bslink/internal/errors"
	"github.com/blacksky-md/bslink/internal/fingerprint"
)

func TestFake_RecordsOpens(t *testing.T) {
	fake := NewFake(Script{Events: []Event{OpenedEvent{Resumed: true}}})
	fp := fingerprint.Descriptor{DisplayName: "Chrome", Platform: "Linux", Version: "110.0"}

	h, err := fake.Open(context.Background(), []byte("creds"), fp)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	if fake.OpenCount() != 1 {
		t.Fatalf("Expected 1 open, got %d", fake.OpenCount())
	}
	rec := fake.Opens()[0]
	if string(rec.Credentials) != "creds" {
		t.Errorf("Expected recorded credentials 'creds', got %q", rec.Credentials)
	}
	if rec.Fingerprint != fp {
		t.Errorf("Expected recorded fingerprint %v, got %v", fp, rec.Fingerprint)
	}
}

func TestFake_EmitsScriptedEventsInOrder(t *testing.T) {
	fake := NewFake(Script{Events: []Event{
		CodeReadyEvent{Payload: "code-1"},
		OpenedEvent{},
		ClosedEvent{StatusCode: StatusConnectionLost, Message: "stream ended"},
	}})

	h, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{DisplayName: "Chrome", Platform: "Linux"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var got []Event
	for e := range h.Events() {
		got = append(got, e)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	if code, ok := got[0].(CodeReadyEvent); !ok || code.Payload != "code-1" {
		t.Errorf("Expected first event CodeReadyEvent{code-1}, got %#v", got[0])
	}
	if closed, ok := got[2].(ClosedEvent); !ok || closed.StatusCode != StatusConnectionLost {
		t.Errorf("Expected final ClosedEvent with status %d, got %#v", StatusConnectionLost, got[2])
	}
}

func TestFake_OpenErr(t *testing.T) {
	wantErr := errors.New("dial refused")
	fake := NewFake(Script{OpenErr: wantErr})

	_, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected scripted open error, got %v", err)
	}
	if fake.OpenCount() != 1 {
		t.Errorf("Failed opens should still be recorded, got count %d", fake.OpenCount())
	}
}

func TestFake_ReusesLastScript(t *testing.T) {
	fake := NewFake(Script{Events: []Event{ClosedEvent{StatusCode: StatusConnectionLost}}})

	for i := 0; i < 3; i++ {
		h, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{})
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		e, ok := <-h.Events()
		if !ok {
			t.Fatalf("Open %d: expected an event", i)
		}
		if _, ok := e.(ClosedEvent); !ok {
			t.Fatalf("Open %d: expected ClosedEvent, got %#v", i, e)
		}
	}
}

func TestFakeHandle_PairingGatedOnReady(t *testing.T) {
	fake := NewFake(Script{Hold: true, PairingCode: "ABCD-1234"})

	h, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fh := fake.HandleAt(0)

	_, err = h.RequestPairingCode(context.Background(), "15551234567")
	if !errors.Is(err, bserr.ErrPairingNotReady) {
		t.Fatalf("Expected ErrPairingNotReady before ready signal, got %v", err)
	}

	fh.Emit(PairingReadyEvent{})

	code, err := h.RequestPairingCode(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("RequestPairingCode after ready failed: %v", err)
	}
	if code != "ABCD-1234" {
		t.Errorf("Expected scripted pairing code, got %q", code)
	}

	calls := fh.PairingCalls()
	if len(calls) != 2 || calls[0] != "15551234567" {
		t.Errorf("Expected both calls recorded, got %v", calls)
	}
}

func TestFakeHandle_CloseIdempotent(t *testing.T) {
	fake := NewFake(Script{Hold: true})

	h, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("First Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	if _, ok := <-h.Events(); ok {
		t.Error("Expected event stream to be closed after Close")
	}

	_, err = h.RequestPairingCode(context.Background(), "15551234567")
	if !errors.Is(err, bserr.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed after Close, got %v", err)
	}
}

func TestFakeHandle_EmitAfterCloseDropped(t *testing.T) {
	fake := NewFake(Script{Hold: true})

	if _, err := fake.Open(context.Background(), nil, fingerprint.Descriptor{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	fh := fake.HandleAt(0)

	fh.Emit(ClosedEvent{StatusCode: StatusConnectionReplaced, Message: "replaced"})
	// Must not panic on a closed stream.
	fh.Emit(CredentialsUpdateEvent{Credentials: []byte("stale")})

	var got []Event
	for e := range fh.Events() {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("Expected only the ClosedEvent to be delivered, got %d events", len(got))
	}
}
