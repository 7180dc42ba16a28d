package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/auth"
	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/proto"
	"github.com/vovakirdan/chatdispatch/internal/store"
	"github.com/vovakirdan/chatdispatch/internal/store/memory"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
	cfg  config.Config
}

// startTestServer wires a full server around an in-memory history store.
// mutate may adjust the config before anything is built.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.Upload.Dir = t.TempDir()
	cfg.WS.RatePerSecond = 0
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	fanout := core.NewFanout(&logger)
	hub := core.NewHub(memory.New(store.DefaultPolicy()), fanout, core.Options{
		Rooms:        cfg.Rooms.Names,
		DefaultRooms: cfg.Rooms.Default,
		Logger:       &logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	var authService *auth.Service
	if cfg.JWT.Secret != "" {
		authService = auth.NewService(&auth.JWTConfig{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    cfg.JWT.TTL,
		})
	}

	server := NewServer(hub, fanout, authService, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, cfg: cfg}
}

type frame struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient keeps frames it skipped so that acks and events can be awaited
// in any order.
type wsClient struct {
	t       *testing.T
	ctx     context.Context
	conn    *websocket.Conn
	nextID  int64
	pending []frame
}

func dialWS(t *testing.T, env *testEnv) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	return &wsClient{t: t, ctx: ctx, conn: conn}
}

// send writes an inbound event and returns its id.
func (c *wsClient) send(eventType string, data any) int64 {
	c.t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s: %v", eventType, err)
	}
	c.nextID++
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{ID: c.nextID, Type: eventType, Data: payload}); err != nil {
		c.t.Fatalf("write %s: %v", eventType, err)
	}
	return c.nextID
}

func (c *wsClient) next(match func(frame) bool) frame {
	c.t.Helper()

	for i, f := range c.pending {
		if match(f) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}
	for {
		var f frame
		if err := wsjson.Read(c.ctx, c.conn, &f); err != nil {
			c.t.Fatalf("read frame: %v", err)
		}
		if match(f) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *wsClient) ack(id int64, dst any) {
	c.t.Helper()

	f := c.next(func(f frame) bool { return f.Type == proto.OutboundTypeAck && f.ID == id })
	if err := json.Unmarshal(f.Data, dst); err != nil {
		c.t.Fatalf("decode ack %d: %v", id, err)
	}
}

func (c *wsClient) event(name string, dst any) {
	c.t.Helper()

	f := c.next(func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name })
	if err := json.Unmarshal(f.Data, dst); err != nil {
		c.t.Fatalf("decode %s event: %v", name, err)
	}
}

func (c *wsClient) register(name string) proto.RegisterAck {
	c.t.Helper()

	var ack proto.RegisterAck
	c.ack(c.send(proto.InboundTypeRegister, proto.RegisterData{Username: name}), &ack)
	if !ack.Success {
		c.t.Fatalf("register %s failed", name)
	}
	return ack
}
