package core

import (
	"time"

	"github.com/vovakirdan/chatdispatch/internal/store"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister claims a username for the connection.
	CommandRegister CommandKind = iota
	// CommandMessage posts to the global channel.
	CommandMessage
	// CommandRoomMessage posts to a room the sender is in.
	CommandRoomMessage
	// CommandPrivateMessage sends text to one registered user.
	CommandPrivateMessage
	// CommandFileMessage shares an uploaded file with one user or everyone.
	CommandFileMessage
	// CommandTyping relays a typing indicator. It has no acknowledgment.
	CommandTyping
	// CommandJoinRoom switches the connection's current room.
	CommandJoinRoom
	// CommandGetHistory reads a channel's recent messages.
	CommandGetHistory
	// CommandDisconnect tears down the session of a closed connection.
	CommandDisconnect
	// CommandListUsers returns the registered usernames.
	CommandListUsers
	// CommandListRooms returns every room with its members.
	CommandListRooms
	// CommandPrune runs history retention maintenance.
	CommandPrune
)

var commandKindNames = [...]string{
	CommandRegister:       "register",
	CommandMessage:        "message",
	CommandRoomMessage:    "roomMessage",
	CommandPrivateMessage: "privateMessage",
	CommandFileMessage:    "fileMessage",
	CommandTyping:         "typing",
	CommandJoinRoom:       "joinRoom",
	CommandGetHistory:     "getHistory",
	CommandDisconnect:     "disconnect",
	CommandListUsers:      "listUsers",
	CommandListRooms:      "listRooms",
	CommandPrune:          "prune",
}

func (k CommandKind) String() string {
	if k >= 0 && int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return "unknown"
}

// BroadcastRecipient addresses a file message to every connection.
const BroadcastRecipient = "all"

// History channel types accepted by CommandGetHistory.
const (
	HistoryTypeGlobal  = "global"
	HistoryTypeRoom    = "room"
	HistoryTypePrivate = "private"
)

// joinRoomHistoryLimit is how much room history a joinRoom ack carries.
const joinRoomHistoryLimit = 50

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	Username  string
	Room      string
	Recipient string
	Text      string
	File      *store.FileRef
	IsTyping  bool
	// Payload is the client's typing payload, relayed as-is.
	Payload map[string]any

	HistoryType string
	HistoryName string
	Limit       int

	Reason string
}

// RoomSnapshot is a room name with its members at one point in time.
type RoomSnapshot struct {
	Name  string
	Users []string
}

// Ack is the single result of a command, returned to its caller.
type Ack struct {
	Err       *CoreError
	Username  string
	Room      string
	Timestamp time.Time
	History   []store.Message
	Users     []string
	Rooms     []RoomSnapshot
	Pruned    int
}

// OK reports whether the command succeeded.
func (a Ack) OK() bool {
	return a.Err == nil
}

func failed(err *CoreError) Ack {
	return Ack{Err: err}
}
