package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatdispatch/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username to register")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var nextID int64
	request := func(eventType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", eventType, err)
		}
		nextID++
		if err := wsjson.Write(ctx, conn, proto.Inbound{ID: nextID, Type: eventType, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", eventType, err)
		}
		return awaitAck(ctx, conn, nextID, eventType)
	}

	if err := request(proto.InboundTypeRegister, proto.RegisterData{Username: *user}); err != nil {
		return err
	}
	if err := request(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room}); err != nil {
		return err
	}
	if err := request(proto.InboundTypeRoomMessage, proto.RoomMessageData{Room: *room, Message: *text}); err != nil {
		return err
	}

	// Wait for our own message to come back through the room.
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return err
		}
		if f.Event != "roomMessage" {
			continue
		}
		var msg proto.MessagePayload
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return fmt.Errorf("unmarshal roomMessage: %w", err)
		}
		fmt.Printf("roomMessage: room=%s user=%s text=%q ts=%s\n", msg.Room, msg.Username, msg.Message, msg.Timestamp)
		return nil
	}
}

func awaitAck(ctx context.Context, conn *websocket.Conn, id int64, eventType string) error {
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return err
		}
		if f.Type != proto.OutboundTypeAck || f.ID != id {
			continue
		}

		var status proto.ErrorAck
		if err := json.Unmarshal(f.Data, &status); err != nil {
			return fmt.Errorf("unmarshal %s ack: %w", eventType, err)
		}
		fmt.Printf("ack %s: %s\n", eventType, string(f.Data))
		if !status.Success {
			return fmt.Errorf("%s failed: %s (%s)", eventType, status.Error, status.Code)
		}
		return nil
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (frame, error) {
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return f, fmt.Errorf("read: %w", err)
	}
	if f.Type == proto.OutboundTypeEvent {
		fmt.Printf("event=%s data=%s\n", f.Event, string(f.Data))
	}
	return f, nil
}
