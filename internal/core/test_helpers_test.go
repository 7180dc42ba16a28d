package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatdispatch/internal/store"
	"github.com/vovakirdan/chatdispatch/internal/store/memory"
)

// emission records one Transport call.
type emission struct {
	scope  string // "to", "room", "all", "except"
	target string
	event  *Event
}

// recordingTransport captures emits and tracks transport-level room joins.
type recordingTransport struct {
	mu       sync.Mutex
	emits    []emission
	joined   map[string]map[string]bool
	panicOn  EventKind
	panicked bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{joined: make(map[string]map[string]bool), panicOn: -1}
}

func (r *recordingTransport) record(scope, target string, ev *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Kind == r.panicOn && !r.panicked {
		r.panicked = true
		panic("transport exploded")
	}
	r.emits = append(r.emits, emission{scope: scope, target: target, event: ev})
}

func (r *recordingTransport) EmitTo(connID string, ev *Event)  { r.record("to", connID, ev) }
func (r *recordingTransport) EmitToRoom(room string, ev *Event) { r.record("room", room, ev) }
func (r *recordingTransport) Broadcast(ev *Event)               { r.record("all", "", ev) }
func (r *recordingTransport) BroadcastExcept(connID string, ev *Event) {
	r.record("except", connID, ev)
}

func (r *recordingTransport) JoinRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joined[connID] == nil {
		r.joined[connID] = make(map[string]bool)
	}
	r.joined[connID][room] = true
}

func (r *recordingTransport) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.joined[connID], room)
}

func (r *recordingTransport) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = nil
}

func (r *recordingTransport) filter(kind EventKind) []emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emission
	for _, e := range r.emits {
		if e.event.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newMemoryHistory() store.HistoryStore {
	return memory.New(store.DefaultPolicy())
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// testClock is a settable clock shared by the hub and its history store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startHubWithClock(t *testing.T, clock *testClock) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	history := memory.New(store.DefaultPolicy(), memory.WithClock(clock.Now))
	hub := NewHub(history, newRecordingTransport(), Options{
		Rooms:        []string{"general", "random", "tech"},
		DefaultRooms: []string{"general"},
		Clock:        clock.Now,
	})
	go hub.Run(ctx)
	return hub
}

func startHub(t *testing.T) (*Hub, *recordingTransport, store.HistoryStore) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	history := newMemoryHistory()
	transport := newRecordingTransport()
	hub := NewHub(history, transport, Options{
		Rooms:        []string{"general", "random", "tech"},
		DefaultRooms: []string{"general"},
		Clock:        func() time.Time { return fixedNow },
	})
	go hub.Run(ctx)
	return hub, transport, history
}

func do(t *testing.T, hub *Hub, connID string, cmd Command) Ack {
	t.Helper()
	ack, err := hub.Do(context.Background(), connID, cmd)
	if err != nil {
		t.Fatalf("hub.Do(%s): %v", cmd.Kind, err)
	}
	return ack
}

func register(t *testing.T, hub *Hub, connID, name string) {
	t.Helper()
	ack := do(t, hub, connID, Command{Kind: CommandRegister, Username: name})
	if !ack.OK() {
		t.Fatalf("register %s: %v", name, ack.Err)
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}
