package http

import (
	"bytes"
	"encoding/json"

	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/proto"
	"github.com/vovakirdan/chatdispatch/internal/store"
)

// Protocol-level error codes that never reach the hub.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnknownEvent = "unknown_event"
	ErrCodeRateLimited  = "rate_limited"
)

func inboundToCommand(inbound proto.Inbound) (core.Command, *proto.ErrorAck) {
	switch inbound.Type {
	case proto.InboundTypeRegister:
		var data proto.RegisterData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandRegister, Username: data.Username}, nil
	case proto.InboundTypeMessage:
		var data proto.MessageData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandMessage, Text: data.Message}, nil
	case proto.InboundTypeRoomMessage:
		var data proto.RoomMessageData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandRoomMessage, Room: data.Room, Text: data.Message}, nil
	case proto.InboundTypePrivateMessage:
		var data proto.PrivateMessageData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandPrivateMessage, Recipient: data.Recipient, Text: data.Message}, nil
	case proto.InboundTypeFileMessage:
		var data proto.FileMessageData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{
			Kind:      core.CommandFileMessage,
			Recipient: data.Recipient,
			File: &store.FileRef{
				URL:          data.FileURL,
				OriginalName: data.OriginalName,
				Size:         data.FileSize,
			},
		}, nil
	case proto.InboundTypeTyping:
		var data proto.TypingData
		var payload map[string]any
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		if err := decodeData(inbound.Data, &payload); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandTyping, IsTyping: data.IsTyping, Payload: payload}, nil
	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{Kind: core.CommandJoinRoom, Room: data.Room}, nil
	case proto.InboundTypeGetHistory:
		var data proto.GetHistoryData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, badRequest()
		}
		return core.Command{
			Kind:        core.CommandGetHistory,
			HistoryType: data.Type,
			HistoryName: data.Name,
			Limit:       data.Limit,
		}, nil
	default:
		return core.Command{}, &proto.ErrorAck{Error: "Unknown event type", Code: ErrCodeUnknownEvent}
	}
}

// decodeData treats a missing payload as an empty object.
func decodeData(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func badRequest() *proto.ErrorAck {
	return &proto.ErrorAck{Error: "Malformed event payload", Code: ErrCodeBadRequest}
}

func errorOutbound(id int64, errAck *proto.ErrorAck) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeAck, ID: id, Data: errAck}
}

// ackToOutbound renders the hub's answer for the command that produced it.
func ackToOutbound(id int64, kind core.CommandKind, ack core.Ack, token string) proto.Outbound {
	if !ack.OK() {
		return errorOutbound(id, &proto.ErrorAck{Error: ack.Err.Message, Code: ack.Err.Code})
	}

	var data any
	switch kind {
	case core.CommandRegister:
		data = proto.RegisterAck{Success: true, Username: ack.Username, Token: token}
	case core.CommandJoinRoom:
		data = proto.JoinRoomAck{
			Success: true,
			Room:    ack.Room,
			History: messagePayloads(ack.History),
			Users:   nonNil(ack.Users),
		}
	case core.CommandGetHistory:
		data = proto.HistoryAck{Success: true, History: messagePayloads(ack.History)}
	default:
		data = proto.SendAck{Success: true, Timestamp: proto.FormatTime(ack.Timestamp)}
	}
	return proto.Outbound{Type: proto.OutboundTypeAck, ID: id, Data: data}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch event.Kind {
	case core.EventMessage, core.EventRoomMessage, core.EventPrivateMessage, core.EventFileMessage:
		payload := messagePayload(event.Message)
		payload.IsSender = event.IsSender
		out.Data = payload
	case core.EventTyping:
		out.Data = typingPayload(event)
	case core.EventUserJoined, core.EventUserLeft:
		out.Data = proto.UserPayload{Username: event.User}
	case core.EventUserList:
		out.Data = proto.UserListPayload{Users: nonNil(event.Users)}
	case core.EventRoomUsers:
		out.Data = proto.RoomUsersPayload{Room: event.Room, Users: nonNil(event.Users)}
	}
	return out
}

// typingPayload relays the client's fields with username and isTyping set
// by the server.
func typingPayload(event *core.Event) proto.TypingPayload {
	payload := make(proto.TypingPayload, len(event.Payload)+2)
	for k, v := range event.Payload {
		payload[k] = v
	}
	payload["username"] = event.User
	payload["isTyping"] = event.IsTyping
	return payload
}

func messagePayload(msg store.Message) proto.MessagePayload {
	payload := proto.MessagePayload{
		Username:  msg.Author,
		Message:   msg.Text,
		Timestamp: proto.FormatTime(msg.CreatedAt),
		Type:      "text",
	}
	switch msg.Channel.Kind {
	case store.ChannelRoom:
		payload.Room = msg.Channel.Name
	case store.ChannelPrivate:
		payload.Sender = msg.Author
		payload.Recipient = msg.Recipient
	}
	if msg.File != nil {
		payload.Type = "file"
		payload.FileURL = msg.File.URL
		payload.OriginalName = msg.File.OriginalName
		payload.FileSize = msg.File.Size
		if msg.Recipient != "" {
			payload.Sender = msg.Author
			payload.Recipient = msg.Recipient
		}
	}
	return payload
}

func messagePayloads(msgs []store.Message) []proto.MessagePayload {
	out := make([]proto.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messagePayload(msg))
	}
	return out
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
