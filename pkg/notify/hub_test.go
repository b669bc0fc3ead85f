package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/dgreene/pulse/pkg/observability"
)

type fakeObserver struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	sendErr  error
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.received = append(o.received, payload)
	return nil
}

func (o *fakeObserver) messages() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.received)
}

func newTestHub() *Hub {
	return NewHub(observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
}

func TestBroadcastDeliversToAllObservers(t *testing.T) {
	hub := newTestHub()

	a := &fakeObserver{id: "a"}
	b := &fakeObserver{id: "b"}
	hub.Register(a)
	hub.Register(b)

	delivered := hub.Broadcast(map[string]string{"type": "data_refreshed"})
	if delivered != 2 {
		t.Errorf("Expected 2 deliveries, got %d", delivered)
	}
	if a.messages() != 1 || b.messages() != 1 {
		t.Error("Expected each observer to receive the broadcast")
	}

	var decoded map[string]string
	if err := json.Unmarshal(a.received[0], &decoded); err != nil {
		t.Fatalf("Broadcast payload is not valid JSON: %v", err)
	}
	if decoded["type"] != "data_refreshed" {
		t.Errorf("Expected type data_refreshed, got %s", decoded["type"])
	}
}

func TestFailedObserverIsDropped(t *testing.T) {
	hub := newTestHub()

	healthy := &fakeObserver{id: "healthy"}
	dead := &fakeObserver{id: "dead", sendErr: errors.New("broken pipe")}
	hub.Register(healthy)
	hub.Register(dead)

	if delivered := hub.Broadcast("first"); delivered != 1 {
		t.Errorf("Expected 1 delivery past the dead observer, got %d", delivered)
	}
	if hub.Count() != 1 {
		t.Errorf("Expected dead observer to be dropped, registry has %d", hub.Count())
	}

	if delivered := hub.Broadcast("second"); delivered != 1 {
		t.Errorf("Expected 1 delivery on second broadcast, got %d", delivered)
	}
	if healthy.messages() != 2 {
		t.Errorf("Expected healthy observer to get both broadcasts, got %d", healthy.messages())
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := newTestHub()

	hub.Register(&fakeObserver{id: "a"})
	hub.Unregister("a")
	hub.Unregister("a")
	hub.Unregister("never-registered")

	if hub.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", hub.Count())
	}
}

func TestRegisterReplacesSameID(t *testing.T) {
	hub := newTestHub()

	first := &fakeObserver{id: "conn"}
	second := &fakeObserver{id: "conn"}
	hub.Register(first)
	hub.Register(second)

	if hub.Count() != 1 {
		t.Fatalf("Expected 1 observer after re-registration, got %d", hub.Count())
	}

	hub.Broadcast("hello")
	if first.messages() != 0 {
		t.Error("Expected replaced observer to receive nothing")
	}
	if second.messages() != 1 {
		t.Error("Expected replacement observer to receive the broadcast")
	}
}

func TestConcurrentRegisterAndBroadcast(t *testing.T) {
	hub := newTestHub()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Register(&fakeObserver{id: fmt.Sprintf("obs-%d", i)})
			hub.Broadcast(i)
		}(i)
	}
	wg.Wait()

	if hub.Count() != 16 {
		t.Errorf("Expected 16 observers, got %d", hub.Count())
	}
}

func TestBroadcastUnserializablePayload(t *testing.T) {
	hub := newTestHub()
	hub.Register(&fakeObserver{id: "a"})

	if delivered := hub.Broadcast(make(chan int)); delivered != 0 {
		t.Errorf("Expected 0 deliveries for unserializable payload, got %d", delivered)
	}
	if hub.Count() != 1 {
		t.Error("Serialization failure must not drop observers")
	}
}
