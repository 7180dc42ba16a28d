package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &chat{ctx: ctx, conn: conn, room: *room}
	c.send(proto.InboundTypeRegister, proto.RegisterData{Username: *user})
	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room})

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type to talk in the room. /join <room>, /pm <user> <text>, /all <text>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	c.writeLoop()

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type chat struct {
	ctx    context.Context
	conn   *websocket.Conn
	room   string
	nextID int64
}

func (c *chat) send(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal %s: %v", eventType, err)
		return
	}
	c.nextID++
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{ID: c.nextID, Type: eventType, Data: payload}); err != nil {
		log.Printf("send error: %v", err)
	}
}

func (c *chat) writeLoop() {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handleLine(strings.TrimSpace(line))
		}
	}
}

func (c *chat) handleLine(line string) {
	switch {
	case line == "":
	case strings.HasPrefix(line, "/join "):
		c.room = strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: c.room})
	case strings.HasPrefix(line, "/pm "):
		to, text, found := strings.Cut(strings.TrimPrefix(line, "/pm "), " ")
		if !found {
			fmt.Println("usage: /pm <user> <text>")
			return
		}
		c.send(proto.InboundTypePrivateMessage, proto.PrivateMessageData{Recipient: to, Message: text})
	case strings.HasPrefix(line, "/all "):
		c.send(proto.InboundTypeMessage, proto.MessageData{Message: strings.TrimPrefix(line, "/all ")})
	default:
		c.send(proto.InboundTypeRoomMessage, proto.RoomMessageData{Room: c.room, Message: line})
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if f.Type == proto.OutboundTypeAck {
			var status proto.ErrorAck
			if err := json.Unmarshal(f.Data, &status); err == nil && !status.Success {
				fmt.Printf("! %s (%s)\n", status.Error, status.Code)
			}
			continue
		}
		printEvent(f)
	}
}

func printEvent(f frame) {
	switch f.Event {
	case "message", "roomMessage", "privateMessage", "fileMessage":
		var msg proto.MessagePayload
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			log.Printf("unmarshal %s: %v", f.Event, err)
			return
		}
		body := msg.Message
		if msg.FileURL != "" {
			body = fmt.Sprintf("[file %s %s]", msg.OriginalName, msg.FileURL)
		}
		switch {
		case msg.Room != "":
			fmt.Printf("[%s] %s: %s\n", msg.Room, msg.Username, body)
		case msg.IsSender:
			fmt.Printf("[to %s] %s\n", msg.Recipient, body)
		case msg.Recipient != "" && msg.Recipient != "all":
			fmt.Printf("[from %s] %s\n", msg.Sender, body)
		default:
			fmt.Printf("[all] %s: %s\n", msg.Username, body)
		}
	case "userJoined", "userLeft":
		var evt proto.UserPayload
		if err := json.Unmarshal(f.Data, &evt); err == nil {
			fmt.Printf("* %s %s\n", evt.Username, strings.TrimPrefix(f.Event, "user"))
		}
	case "typing", "userList", "roomUsers":
		// too chatty for a terminal
	default:
		fmt.Printf("event=%s data=%s\n", f.Event, string(f.Data))
	}
}
