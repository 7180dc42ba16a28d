package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/metrics"
)

// Transport is the fan-out substrate the Hub emits through.
// Implementations must not block.
type Transport interface {
	EmitTo(connID string, event *Event)
	EmitToRoom(room string, event *Event)
	Broadcast(event *Event)
	BroadcastExcept(connID string, event *Event)
	JoinRoom(connID, room string)
	LeaveRoom(connID, room string)
}

// Fanout is the in-process Transport backed by client event channels.
type Fanout struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]*Room
	log     *zerolog.Logger
}

var _ Transport = (*Fanout)(nil)

// NewFanout creates a fan-out with no clients.
func NewFanout(logger *zerolog.Logger) *Fanout {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fanout{
		clients: make(map[string]*Client),
		rooms:   make(map[string]*Room),
		log:     logger,
	}
}

// Attach makes a client addressable.
func (f *Fanout) Attach(c *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
}

// Detach removes the client from every room and closes its event channel.
func (f *Fanout) Detach(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[connID]
	if !ok {
		return
	}
	for name, room := range f.rooms {
		room.RemoveClient(c)
		if room.Empty() {
			delete(f.rooms, name)
		}
	}
	delete(f.clients, connID)
	close(c.Events)
}

// Len returns the number of attached clients.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// EmitTo sends to one connection; unknown connections are ignored.
func (f *Fanout) EmitTo(connID string, event *Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if c, ok := f.clients[connID]; ok {
		f.deliver(c, event)
	}
}

// EmitToRoom sends to every connection subscribed to the room.
func (f *Fanout) EmitToRoom(room string, event *Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if r, ok := f.rooms[room]; ok {
		f.dropped(event, r.Broadcast(event))
	}
}

// Broadcast sends to every connection.
func (f *Fanout) Broadcast(event *Event) {
	f.BroadcastExcept("", event)
}

// BroadcastExcept sends to every connection but one.
func (f *Fanout) BroadcastExcept(connID string, event *Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, c := range f.clients {
		if id == connID {
			continue
		}
		f.deliver(c, event)
	}
}

// JoinRoom subscribes a connection to a room, creating the room on demand.
func (f *Fanout) JoinRoom(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[connID]
	if !ok {
		return
	}
	r, ok := f.rooms[room]
	if !ok {
		r = NewRoom(room)
		f.rooms[room] = r
	}
	r.AddClient(c)
}

// LeaveRoom unsubscribes a connection from a room.
func (f *Fanout) LeaveRoom(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[connID]
	if !ok {
		return
	}
	if r, ok := f.rooms[room]; ok {
		r.RemoveClient(c)
		if r.Empty() {
			delete(f.rooms, room)
		}
	}
}

func (f *Fanout) deliver(c *Client, event *Event) {
	if !c.deliver(event) {
		f.dropped(event, 1)
	}
}

func (f *Fanout) dropped(event *Event, n int) {
	if n == 0 {
		return
	}
	metrics.DroppedEvents.Add(float64(n))
	f.log.Debug().Str("event", event.Kind.String()).Int("count", n).Msg("dropped event for slow consumer")
}
