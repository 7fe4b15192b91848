package event

import (
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}

	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}

	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var receivedEvent Event
	bus.Subscribe("session.connected", func(e Event) {
		receivedEvent = e
	})

	bus.Publish(NewConnectedEvent("primary", false, "Chrome (Linux)"))

	if receivedEvent == nil {
		t.Fatal("Handler should have received the event")
	}

	if receivedEvent.EventType() != "session.connected" {
		t.Errorf("Expected event type 'session.connected', got '%s'", receivedEvent.EventType())
	}

	connected, ok := receivedEvent.(ConnectedEvent)
	if !ok {
		t.Fatalf("Expected ConnectedEvent, got %T", receivedEvent)
	}
	if connected.SessionID != "primary" {
		t.Errorf("Expected session ID 'primary', got '%s'", connected.SessionID)
	}
	if connected.Fingerprint != "Chrome (Linux)" {
		t.Errorf("Expected fingerprint 'Chrome (Linux)', got '%s'", connected.Fingerprint)
	}
}

func TestBus_PublishMultipleHandlers(t *testing.T) {
	bus := NewBus()

	callCount := 0
	bus.Subscribe("test.event", func(e Event) {
		callCount++
	})
	bus.Subscribe("test.event", func(e Event) {
		callCount++
	})

	bus.Publish(newBaseEvent("test.event"))

	if callCount != 2 {
		t.Errorf("Expected 2 handler calls, got %d", callCount)
	}
}

func TestBus_PublishNoSubscribers(t *testing.T) {
	bus := NewBus()

	// Should not panic when there are no subscribers.
	bus.Publish(newBaseEvent("unhandled.event"))
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var received []string
	bus.SubscribeAll(func(e Event) {
		received = append(received, e.EventType())
	})

	bus.Publish(NewStateChangedEvent("primary", StateIdle, StateConnecting))
	bus.Publish(NewConnectedEvent("primary", true, "Firefox (macOS)"))
	bus.Publish(NewCredentialsSavedEvent("primary"))

	if len(received) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(received))
	}

	expected := []string{"session.state_changed", "session.connected", "credentials.saved"}
	for i, eventType := range expected {
		if received[i] != eventType {
			t.Errorf("Event %d: expected type '%s', got '%s'", i, eventType, received[i])
		}
	}
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe("session.failed", func(e Event) {
		order = append(order, "specific")
	})

	bus.Publish(NewFailedEvent("primary", "logged_out"))

	if len(order) != 2 {
		t.Fatalf("Expected 2 handler calls, got %d", len(order))
	}
	if order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("Expected specific handler before wildcard, got %v", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	callCount := 0
	id := bus.Subscribe("test.event", func(e Event) {
		callCount++
	})

	bus.Publish(newBaseEvent("test.event"))
	if callCount != 1 {
		t.Fatalf("Expected 1 call before unsubscribe, got %d", callCount)
	}

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for a known ID")
	}

	bus.Publish(newBaseEvent("test.event"))
	if callCount != 1 {
		t.Errorf("Expected no further calls after unsubscribe, got %d total", callCount)
	}
}

func TestBus_UnsubscribeUnknownID(t *testing.T) {
	bus := NewBus()

	if bus.Unsubscribe("sub-999") {
		t.Error("Unsubscribe should return false for an unknown ID")
	}
}

func TestBus_HandlerPanic(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("test.event", func(e Event) {
		panic("handler exploded")
	})

	secondCalled := false
	bus.Subscribe("test.event", func(e Event) {
		secondCalled = true
	})

	// Must not propagate the panic and must still reach later handlers.
	bus.Publish(newBaseEvent("test.event"))

	if !secondCalled {
		t.Error("Handlers after a panicking handler should still be called")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()

	callCount := 0
	bus.Subscribe("test.event", func(e Event) {
		callCount++
	})
	bus.SubscribeAll(func(e Event) {
		callCount++
	})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}

	bus.Publish(newBaseEvent("test.event"))
	if callCount != 0 {
		t.Errorf("Expected no handler calls after Clear, got %d", callCount)
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	received := 0
	bus.Subscribe("test.event", func(e Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(newBaseEvent("test.event"))
		}()
		go func() {
			defer wg.Done()
			bus.Subscribe("other.event", func(e Event) {})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if received != 10 {
		t.Errorf("Expected 10 publishes received, got %d", received)
	}
}

func TestBus_DisconnectedEventFields(t *testing.T) {
	bus := NewBus()

	var got DisconnectedEvent
	bus.Subscribe("session.disconnected", func(e Event) {
		got = e.(DisconnectedEvent)
	})

	bus.Publish(NewDisconnectedEvent("primary", 429, "too many requests", "rate_limited", true))

	if got.StatusCode != 429 {
		t.Errorf("Expected status code 429, got %d", got.StatusCode)
	}
	if got.Reason != "rate_limited" {
		t.Errorf("Expected reason 'rate_limited', got '%s'", got.Reason)
	}
	if !got.WillRetry {
		t.Error("Expected WillRetry to be true")
	}
}
