package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for events coming from the client.
// ID is echoed back on the ack so clients can correlate responses.
type Inbound struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRegister       = "register"
	InboundTypeMessage        = "message"
	InboundTypeRoomMessage    = "roomMessage"
	InboundTypePrivateMessage = "privateMessage"
	InboundTypeFileMessage    = "fileMessage"
	InboundTypeTyping         = "typing"
	InboundTypeJoinRoom       = "joinRoom"
	InboundTypeGetHistory     = "getHistory"

	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
)

// TimeLayout is the ISO-8601 form used for every timestamp on the wire.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// RegisterData claims a username for the connection.
type RegisterData struct {
	Username string `json:"username"`
}

// MessageData is a message to the global channel.
type MessageData struct {
	Message string `json:"message"`
}

// RoomMessageData is a message to a room the sender is in.
type RoomMessageData struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// PrivateMessageData is a direct message.
type PrivateMessageData struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// FileMessageData shares an uploaded file with one user or with "all".
type FileMessageData struct {
	Recipient    string `json:"recipient"`
	FileURL      string `json:"fileUrl"`
	OriginalName string `json:"originalName"`
	FileSize     int64  `json:"fileSize"`
}

// TypingData toggles the typing indicator.
type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// JoinRoomData switches the current room.
type JoinRoomData struct {
	Room string `json:"room"`
}

// GetHistoryData reads a channel. Limit 0 means the default.
type GetHistoryData struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Outbound is the envelope for everything sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    int64  `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// RegisterAck answers register. Token is set when upload auth is enabled.
type RegisterAck struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// SendAck answers every message-producing event.
type SendAck struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// JoinRoomAck answers joinRoom.
type JoinRoomAck struct {
	Success bool             `json:"success"`
	Room    string           `json:"room"`
	History []MessagePayload `json:"history"`
	Users   []string         `json:"users"`
}

// HistoryAck answers getHistory.
type HistoryAck struct {
	Success bool             `json:"success"`
	History []MessagePayload `json:"history"`
}

// ErrorAck is sent whenever an event fails.
type ErrorAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// MessagePayload is a stored or pushed chat message.
type MessagePayload struct {
	Username     string `json:"username"`
	Sender       string `json:"sender,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	Room         string `json:"room,omitempty"`
	Message      string `json:"message,omitempty"`
	FileURL      string `json:"fileUrl,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
	Timestamp    string `json:"timestamp"`
	IsSender     bool   `json:"isSender,omitempty"`
	Type         string `json:"type"`
}

// UserPayload carries a single username for join/leave notices.
type UserPayload struct {
	Username string `json:"username"`
}

// UserListPayload is the full online user list.
type UserListPayload struct {
	Users []string `json:"users"`
}

// RoomUsersPayload is a room member snapshot.
type RoomUsersPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// TypingPayload announces that someone started or stopped typing. It carries
// the sender's payload fields plus "username" and "isTyping".
type TypingPayload map[string]any

// FormatTime renders t in TimeLayout, always in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
