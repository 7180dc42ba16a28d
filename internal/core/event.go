package core

import "github.com/vovakirdan/chatdispatch/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage carries a message posted to the global channel.
	EventMessage EventKind = iota
	// EventRoomMessage carries a message posted to a room.
	EventRoomMessage
	// EventPrivateMessage carries a message between two users.
	EventPrivateMessage
	// EventFileMessage carries a shared file, global or private.
	EventFileMessage
	// EventTyping tells others that a user started or stopped typing.
	EventTyping
	// EventUserJoined announces a newly registered user.
	EventUserJoined
	// EventUserLeft announces a disconnected user.
	EventUserLeft
	// EventUserList delivers the full list of registered users.
	EventUserList
	// EventRoomUsers delivers the member snapshot of a room.
	EventRoomUsers
)

var eventKindNames = [...]string{
	EventMessage:        "message",
	EventRoomMessage:    "roomMessage",
	EventPrivateMessage: "privateMessage",
	EventFileMessage:    "fileMessage",
	EventTyping:         "typing",
	EventUserJoined:     "userJoined",
	EventUserLeft:       "userLeft",
	EventUserList:       "userList",
	EventRoomUsers:      "roomUsers",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after emit.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Users    []string
	Message  store.Message
	IsSender bool
	IsTyping bool
	Payload  map[string]any
}
