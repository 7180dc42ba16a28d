package http

import (
	"encoding/json"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestWebSocketRegisterAnnounces(t *testing.T) {
	env := startTestServer(t, nil)

	alice := dialWS(t, env)
	ack := alice.register("  alice ")
	assert.Equal(t, "alice", ack.Username)
	assert.Empty(t, ack.Token)

	bob := dialWS(t, env)
	bob.register("bob")

	var joined proto.UserPayload
	alice.event("userJoined", &joined)
	assert.Equal(t, "bob", joined.Username)

	var list proto.UserListPayload
	bob.event("userList", &list)
	assert.Equal(t, []string{"alice", "bob"}, list.Users)

	var roomUsers proto.RoomUsersPayload
	bob.event("roomUsers", &roomUsers)
	assert.Equal(t, "general", roomUsers.Room)
	assert.Equal(t, []string{"alice", "bob"}, roomUsers.Users)

	var dup proto.ErrorAck
	carol := dialWS(t, env)
	carol.ack(carol.send(proto.InboundTypeRegister, proto.RegisterData{Username: "alice"}), &dup)
	assert.False(t, dup.Success)
	assert.Equal(t, "username_taken", dup.Code)
}

func TestWebSocketPrivateMessageScenario(t *testing.T) {
	env := startTestServer(t, nil)

	alice := dialWS(t, env)
	alice.register("alice")
	bob := dialWS(t, env)
	bob.register("bob")

	var sent proto.SendAck
	alice.ack(alice.send(proto.InboundTypePrivateMessage, proto.PrivateMessageData{Recipient: "bob", Message: "hi"}), &sent)
	require.True(t, sent.Success)
	assert.NotEmpty(t, sent.Timestamp)

	var received proto.MessagePayload
	bob.event("privateMessage", &received)
	assert.Equal(t, "alice", received.Sender)
	assert.Equal(t, "bob", received.Recipient)
	assert.Equal(t, "hi", received.Message)
	assert.False(t, received.IsSender)

	var echo proto.MessagePayload
	alice.event("privateMessage", &echo)
	assert.True(t, echo.IsSender)
	assert.Equal(t, "hi", echo.Message)
	assert.Equal(t, received.Timestamp, echo.Timestamp)

	var history proto.HistoryAck
	bob.ack(bob.send(proto.InboundTypeGetHistory, proto.GetHistoryData{Type: "private", Name: "alice-bob"}), &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, "hi", history.History[0].Message)
}

func TestWebSocketRoomFlow(t *testing.T) {
	env := startTestServer(t, nil)

	alice := dialWS(t, env)
	alice.register("alice")

	var join proto.JoinRoomAck
	alice.ack(alice.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "tech"}), &join)
	require.True(t, join.Success)
	assert.Equal(t, "tech", join.Room)
	assert.Equal(t, []string{"alice"}, join.Users)
	assert.NotNil(t, join.History)

	var sent proto.SendAck
	alice.ack(alice.send(proto.InboundTypeRoomMessage, proto.RoomMessageData{Room: "tech", Message: "hello tech"}), &sent)
	require.True(t, sent.Success)

	var msg proto.MessagePayload
	alice.event("roomMessage", &msg)
	assert.Equal(t, "tech", msg.Room)
	assert.Equal(t, "alice", msg.Username)

	var notIn proto.ErrorAck
	alice.ack(alice.send(proto.InboundTypeRoomMessage, proto.RoomMessageData{Room: "random", Message: "x"}), &notIn)
	assert.Equal(t, "not_in_room", notIn.Code)

	var missing proto.ErrorAck
	alice.ack(alice.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "nowhere"}), &missing)
	assert.Equal(t, "room_not_found", missing.Code)
	assert.Equal(t, "Room does not exist", missing.Error)
}

func TestWebSocketProtocolErrors(t *testing.T) {
	env := startTestServer(t, nil)
	client := dialWS(t, env)

	require.NoError(t, client.conn.Write(client.ctx, websocket.MessageText, []byte("{not json")))
	var malformed proto.ErrorAck
	client.ack(0, &malformed)
	assert.Equal(t, ErrCodeBadRequest, malformed.Code)

	var unknown proto.ErrorAck
	client.ack(client.send("shout", map[string]string{"message": "hi"}), &unknown)
	assert.Equal(t, ErrCodeUnknownEvent, unknown.Code)

	var badPayload proto.ErrorAck
	client.ack(client.send(proto.InboundTypeMessage, []int{1, 2}), &badPayload)
	assert.Equal(t, ErrCodeBadRequest, badPayload.Code)

	var unregistered proto.ErrorAck
	client.ack(client.send(proto.InboundTypeMessage, proto.MessageData{Message: "hi"}), &unregistered)
	assert.Equal(t, "not_registered", unregistered.Code)

	// The connection survives every failure above.
	client.register("alice")
}

func TestWebSocketRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.WS.RatePerSecond = 0.001
		cfg.WS.RateBurst = 2
	})
	client := dialWS(t, env)

	client.register("alice")

	var first proto.SendAck
	client.ack(client.send(proto.InboundTypeMessage, proto.MessageData{Message: "one"}), &first)
	assert.True(t, first.Success)

	var limited proto.ErrorAck
	client.ack(client.send(proto.InboundTypeMessage, proto.MessageData{Message: "two"}), &limited)
	assert.False(t, limited.Success)
	assert.Equal(t, ErrCodeRateLimited, limited.Code)
}

func TestWebSocketDisconnectAnnouncesLeave(t *testing.T) {
	env := startTestServer(t, nil)

	alice := dialWS(t, env)
	alice.register("alice")
	bob := dialWS(t, env)
	bob.register("bob")

	require.NoError(t, alice.conn.Close(websocket.StatusNormalClosure, "bye"))

	var left proto.UserPayload
	bob.event("userLeft", &left)
	assert.Equal(t, "alice", left.Username)

	var list proto.UserListPayload
	bob.event("userList", &list)
	// The first userList bob sees may predate the leave; wait for the updated one.
	for len(list.Users) != 1 {
		bob.event("userList", &list)
	}
	assert.Equal(t, []string{"bob"}, list.Users)
}

func TestWebSocketRegisterIssuesUploadToken(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.JWT.Secret = testJWTSecret
	})

	client := dialWS(t, env)
	ack := client.register("alice")
	require.NotEmpty(t, ack.Token)

	claims, err := env.auth.ValidateToken(ack.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestWebSocketTypingIsRelayedWithoutAck(t *testing.T) {
	env := startTestServer(t, nil)
	alice := dialWS(t, env)
	bob := dialWS(t, env)
	alice.register("alice")
	bob.register("bob")

	alice.send(proto.InboundTypeTyping, map[string]any{"isTyping": true, "room": "tech"})

	var typing map[string]any
	bob.event("typing", &typing)
	assert.Equal(t, "alice", typing["username"])
	assert.Equal(t, true, typing["isTyping"])
	assert.Equal(t, "tech", typing["room"])

	// A malformed typing frame is dropped; the next ack belongs to the message.
	alice.send(proto.InboundTypeTyping, []int{1})
	msgID := alice.send(proto.InboundTypeMessage, proto.MessageData{Message: "hi"})
	f := alice.next(func(f frame) bool { return f.Type == proto.OutboundTypeAck })
	assert.Equal(t, msgID, f.ID)
}

func TestWebSocketRateLimitedTypingGetsNoAck(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.WS.RatePerSecond = 0.001
		cfg.WS.RateBurst = 1
	})
	client := dialWS(t, env)
	client.register("alice")

	client.send(proto.InboundTypeTyping, proto.TypingData{IsTyping: true})
	msgID := client.send(proto.InboundTypeMessage, proto.MessageData{Message: "hi"})

	f := client.next(func(f frame) bool { return f.Type == proto.OutboundTypeAck })
	require.Equal(t, msgID, f.ID)
	var limited proto.ErrorAck
	require.NoError(t, json.Unmarshal(f.Data, &limited))
	assert.Equal(t, ErrCodeRateLimited, limited.Code)
}
