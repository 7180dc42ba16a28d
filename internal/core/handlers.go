package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vovakirdan/chatdispatch/internal/metrics"
	"github.com/vovakirdan/chatdispatch/internal/store"
)

func (h *Hub) handleRegister(connID string, cmd Command) Ack {
	name, err := h.ids.Register(connID, cmd.Username)
	if err != nil {
		var coreErr *CoreError
		if errors.As(err, &coreErr) {
			return failed(coreErr)
		}
		return failed(errInternal)
	}

	for _, room := range h.rooms.Defaults() {
		h.rooms.Join(room, name)
		h.transport.JoinRoom(connID, room)
		h.emitRoomUsers(room)
	}
	h.transport.BroadcastExcept(connID, &Event{Kind: EventUserJoined, User: name})
	h.emitUserList()

	h.log.Info().Str("conn_id", connID).Str("username", name).Msg("user registered")
	return Ack{Username: name}
}

func (h *Hub) handleMessage(ctx context.Context, connID string, cmd Command) Ack {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return failed(errNotRegistered)
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return failed(errEmptyMessage)
	}

	msg := store.Message{Author: user, Text: text, CreatedAt: h.stamp()}
	if err := h.append(ctx, store.GlobalChannel(), &msg); err != nil {
		return failed(errInternal)
	}
	h.transport.Broadcast(&Event{Kind: EventMessage, Message: msg})
	return Ack{Timestamp: msg.CreatedAt}
}

func (h *Hub) handleRoomMessage(ctx context.Context, connID string, cmd Command) Ack {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return failed(errNotRegistered)
	}
	if !h.rooms.IsMember(cmd.Room, user) {
		return failed(errNotInRoom)
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return failed(errEmptyMessage)
	}

	msg := store.Message{Author: user, Text: text, CreatedAt: h.stamp()}
	if err := h.append(ctx, store.RoomChannel(cmd.Room), &msg); err != nil {
		return failed(errInternal)
	}
	h.transport.EmitToRoom(cmd.Room, &Event{Kind: EventRoomMessage, Room: cmd.Room, Message: msg})
	return Ack{Timestamp: msg.CreatedAt}
}

func (h *Hub) handlePrivateMessage(ctx context.Context, connID string, cmd Command) Ack {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return failed(errNotRegistered)
	}
	recipient := strings.TrimSpace(cmd.Recipient)
	recipientConn, ok := h.ids.LookupConnection(recipient)
	if !ok {
		return failed(errRecipientNotFound)
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return failed(errEmptyMessage)
	}

	msg := store.Message{Author: user, Recipient: recipient, Text: text, CreatedAt: h.stamp()}
	if err := h.append(ctx, store.PrivateChannel(DeriveKey(user, recipient)), &msg); err != nil {
		return failed(errInternal)
	}
	h.deliverPrivate(connID, recipientConn, EventPrivateMessage, msg)
	return Ack{Timestamp: msg.CreatedAt}
}

func (h *Hub) handleFileMessage(ctx context.Context, connID string, cmd Command) Ack {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return failed(errNotRegistered)
	}
	if cmd.File == nil || validate.Struct(cmd.File) != nil {
		return failed(errInvalidFileData)
	}
	file := *cmd.File
	file.URL = strings.TrimSpace(file.URL)

	recipient := strings.TrimSpace(cmd.Recipient)
	if recipient == BroadcastRecipient {
		msg := store.Message{Author: user, Recipient: BroadcastRecipient, File: &file, CreatedAt: h.stamp()}
		if err := h.append(ctx, store.GlobalChannel(), &msg); err != nil {
			return failed(errInternal)
		}
		h.transport.Broadcast(&Event{Kind: EventFileMessage, Message: msg})
		return Ack{Timestamp: msg.CreatedAt}
	}

	recipientConn, ok := h.ids.LookupConnection(recipient)
	if !ok {
		return failed(errRecipientNotFound)
	}
	msg := store.Message{Author: user, Recipient: recipient, File: &file, CreatedAt: h.stamp()}
	if err := h.append(ctx, store.PrivateChannel(DeriveKey(user, recipient)), &msg); err != nil {
		return failed(errInternal)
	}
	h.deliverPrivate(connID, recipientConn, EventFileMessage, msg)
	return Ack{Timestamp: msg.CreatedAt}
}

func (h *Hub) handleTyping(connID string, cmd Command) {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return
	}
	h.transport.BroadcastExcept(connID, &Event{
		Kind:     EventTyping,
		User:     user,
		IsTyping: cmd.IsTyping,
		Payload:  cmd.Payload,
	})
}

func (h *Hub) handleJoinRoom(ctx context.Context, connID string, cmd Command) Ack {
	user, ok := h.ids.Lookup(connID)
	if !ok {
		return failed(errNotRegistered)
	}
	if !h.rooms.Exists(cmd.Room) {
		return failed(errRoomNotFound)
	}

	for _, left := range h.rooms.LeaveNonDefault(user, cmd.Room) {
		h.transport.LeaveRoom(connID, left)
		h.emitRoomUsers(left)
	}
	if h.rooms.Join(cmd.Room, user) {
		h.transport.JoinRoom(connID, cmd.Room)
		h.emitRoomUsers(cmd.Room)
	}
	h.emitUserList()

	history, err := h.history.Recent(ctx, store.RoomChannel(cmd.Room), joinRoomHistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room", cmd.Room).Msg("failed to load room history")
		history = []store.Message{}
	}

	h.log.Debug().Str("username", user).Str("room", cmd.Room).Msg("joined room")
	return Ack{Room: cmd.Room, History: history, Users: h.rooms.MembersOf(cmd.Room)}
}

func (h *Hub) handleGetHistory(ctx context.Context, cmd Command) Ack {
	ch, ok := h.resolveChannel(cmd.HistoryType, cmd.HistoryName)
	if !ok {
		return Ack{History: []store.Message{}}
	}

	history, err := h.history.Recent(ctx, ch, store.ClampLimit(cmd.Limit))
	if err != nil {
		h.log.Error().Err(err).Str("channel", ch.Key()).Msg("failed to load history")
		return Ack{History: []store.Message{}}
	}
	return Ack{History: history}
}

func (h *Hub) resolveChannel(kind, name string) (store.Channel, bool) {
	switch kind {
	case HistoryTypeGlobal:
		return store.GlobalChannel(), true
	case HistoryTypeRoom:
		if !h.rooms.Exists(name) {
			return store.Channel{}, false
		}
		return store.RoomChannel(name), true
	case HistoryTypePrivate:
		if strings.TrimSpace(name) == "" {
			return store.Channel{}, false
		}
		return store.PrivateChannel(NormalizeKey(name)), true
	default:
		return store.Channel{}, false
	}
}

func (h *Hub) handleDisconnect(connID string, cmd Command) {
	user, ok := h.ids.Remove(connID)
	if !ok {
		return
	}

	for _, room := range h.rooms.RemoveEverywhere(user) {
		h.transport.LeaveRoom(connID, room)
		h.emitRoomUsers(room)
	}
	h.transport.Broadcast(&Event{Kind: EventUserLeft, User: user})
	h.emitUserList()

	h.log.Info().Str("conn_id", connID).Str("username", user).Str("reason", cmd.Reason).Msg("user disconnected")
}

func (h *Hub) handleListRooms() Ack {
	names := h.rooms.Names()
	rooms := make([]RoomSnapshot, 0, len(names))
	for _, name := range names {
		rooms = append(rooms, RoomSnapshot{Name: name, Users: h.rooms.MembersOf(name)})
	}
	return Ack{Rooms: rooms}
}

func (h *Hub) handlePrune(ctx context.Context) Ack {
	removed, err := h.history.Prune(ctx, h.now())
	if err != nil {
		h.log.Error().Err(err).Msg("history prune failed")
		return failed(errInternal)
	}
	metrics.HistoryPruned.Add(float64(removed))
	if removed > 0 {
		h.log.Info().Int("removed", removed).Msg("history pruned")
	}
	return Ack{Pruned: removed}
}

// deliverPrivate sends to the recipient and echoes to the sender with the
// sender marker, so the sender sees its message even if the recipient is gone.
func (h *Hub) deliverPrivate(senderConn, recipientConn string, kind EventKind, msg store.Message) {
	if recipientConn != senderConn {
		h.transport.EmitTo(recipientConn, &Event{Kind: kind, Message: msg})
	}
	h.transport.EmitTo(senderConn, &Event{Kind: kind, Message: msg, IsSender: true})
}

func (h *Hub) append(ctx context.Context, ch store.Channel, msg *store.Message) error {
	msg.Channel = ch
	if err := h.history.Append(ctx, ch, *msg); err != nil {
		h.log.Error().Err(err).Str("channel", ch.Key()).Msg("failed to append history")
		return err
	}
	return nil
}

func (h *Hub) emitRoomUsers(room string) {
	h.transport.EmitToRoom(room, &Event{Kind: EventRoomUsers, Room: room, Users: h.rooms.MembersOf(room)})
}

func (h *Hub) emitUserList() {
	h.transport.Broadcast(&Event{Kind: EventUserList, Users: h.ids.Usernames()})
}

func (h *Hub) stamp() time.Time {
	return h.now().UTC()
}
