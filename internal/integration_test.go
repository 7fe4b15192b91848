// Package internal contains integration tests that verify the packages
// work together: credential store, fingerprint rotation, backoff,
// session manager and event bus wired the way the connect command wires
// them.
package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/blacksky-md/bslink/internal/backoff"
	"github.com/blacksky-md/bslink/internal/credstore"
	"github.com/blacksky-md/bslink/internal/event"
	"github.com/blacksky-md/bslink/internal/fingerprint"
	"github.com/blacksky-md/bslink/internal/session"
	"github.com/blacksky-md/bslink/internal/transport"
)

func testScheduler(t *testing.T) *backoff.Scheduler {
	t.Helper()
	sched, err := backoff.NewScheduler(backoff.Config{
		BaseDelay:            time.Millisecond,
		MaxDelay:             5 * time.Millisecond,
		RateLimitedBaseDelay: 2 * time.Millisecond,
		RateLimitedMaxDelay:  10 * time.Millisecond,
		MaxAttempts:          5,
		Jitter:               false,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return sched
}

func newStack(t *testing.T, tr transport.Transport) (*session.Manager, *credstore.FileStore, *event.Bus) {
	t.Helper()

	bus := event.NewBus()
	store, err := credstore.NewFileStore(t.TempDir(), bus)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	rotator, err := fingerprint.NewRotator(nil)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	mgr, err := session.NewManager(session.Options{
		SessionID: "primary",
		Store:     store,
		Transport: tr,
		Rotator:   rotator,
		Scheduler: testScheduler(t),
		Bus:       bus,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, store, bus
}

func waitState(t *testing.T, mgr *session.Manager, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, at %q", want, mgr.State())
}

// TestFirstPairThenResume runs the full first-connection flow, then
// verifies a second manager against the same store resumes silently.
func TestFirstPairThenResume(t *testing.T) {
	creds := []byte("registered-device-keys")
	fake := transport.NewFake(transport.Script{
		Events: []transport.Event{
			transport.CodeReadyEvent{Payload: "2@abc"},
			transport.CredentialsUpdateEvent{Credentials: creds},
			transport.OpenedEvent{},
		},
	})

	mgr, store, _ := newStack(t, fake)
	if err := mgr.Start(session.AuthCodeDisplay, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, mgr, session.StateConnected)
	if err := mgr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	saved, err := store.Load("primary")
	if err != nil {
		t.Fatalf("Load after first connect: %v", err)
	}
	if string(saved) != string(creds) {
		t.Fatalf("stored credentials = %q, want %q", saved, creds)
	}

	// Second run against the same store: the transport must receive the
	// persisted credentials and open in resumed mode.
	resumeFake := transport.NewFake(transport.Script{
		Events: []transport.Event{transport.OpenedEvent{Resumed: true}},
	})
	bus := event.NewBus()
	rotator, _ := fingerprint.NewRotator(nil)
	mgr2, err := session.NewManager(session.Options{
		SessionID: "primary",
		Store:     store,
		Transport: resumeFake,
		Rotator:   rotator,
		Scheduler: testScheduler(t),
		Bus:       bus,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var mu sync.Mutex
	var resumed bool
	bus.Subscribe("session.connected", func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		resumed = e.(event.ConnectedEvent).Resumed
	})

	if err := mgr2.Start(session.AuthCodeDisplay, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, mgr2, session.StateConnected)
	defer mgr2.Stop()

	opens := resumeFake.Opens()
	if len(opens) != 1 {
		t.Fatalf("open count = %d, want 1", len(opens))
	}
	if string(opens[0].Credentials) != string(creds) {
		t.Errorf("resume used credentials %q, want %q", opens[0].Credentials, creds)
	}
	mu.Lock()
	defer mu.Unlock()
	if !resumed {
		t.Error("expected a resumed connection")
	}
}

// TestRemoteLogoutErasesAndStops verifies a logged-out close erases the
// stored credentials and lands the session in failed without a retry.
func TestRemoteLogoutErasesAndStops(t *testing.T) {
	fake := transport.NewFake(
		transport.Script{Events: []transport.Event{
			transport.CredentialsUpdateEvent{Credentials: []byte("keys")},
			transport.OpenedEvent{},
			transport.ClosedEvent{StatusCode: transport.StatusLoggedOut, Message: "logged out"},
		}},
	)

	mgr, store, bus := newStack(t, fake)

	var mu sync.Mutex
	var events []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.EventType())
	})

	if err := mgr.Start(session.AuthCodeDisplay, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, mgr, session.StateFailed)

	if store.Exists("primary") {
		t.Error("expected credentials erased after remote logout")
	}
	if n := fake.OpenCount(); n != 1 {
		t.Errorf("open count = %d, want 1 (no retry on logout)", n)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawErase, sawFailed bool
	for _, et := range events {
		switch et {
		case "credentials.erased":
			sawErase = true
		case "session.failed":
			sawFailed = true
		}
	}
	if !sawErase || !sawFailed {
		t.Errorf("events = %v, want credentials.erased and session.failed", events)
	}
}

// TestReconnectAfterNetworkDrop verifies the reconnect loop recovers
// from a transient network close and reuses the stored credentials.
func TestReconnectAfterNetworkDrop(t *testing.T) {
	creds := []byte("keys")
	fake := transport.NewFake(
		transport.Script{Events: []transport.Event{
			transport.CredentialsUpdateEvent{Credentials: creds},
			transport.OpenedEvent{},
			transport.ClosedEvent{StatusCode: transport.StatusConnectionLost, Message: "connection lost"},
		}},
		transport.Script{Events: []transport.Event{
			transport.OpenedEvent{Resumed: true},
		}},
	)

	mgr, _, _ := newStack(t, fake)
	if err := mgr.Start(session.AuthCodeDisplay, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fake.OpenCount() >= 2 && mgr.State() == session.StateConnected {
			break
		}
		time.Sleep(time.Millisecond)
	}
	defer mgr.Stop()

	opens := fake.Opens()
	if len(opens) < 2 {
		t.Fatalf("open count = %d, want >= 2", len(opens))
	}
	if string(opens[1].Credentials) != string(creds) {
		t.Errorf("reconnect used credentials %q, want %q", opens[1].Credentials, creds)
	}
	if mgr.State() != session.StateConnected {
		t.Errorf("state = %q, want %q", mgr.State(), session.StateConnected)
	}
}
