package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/auth"
	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/metrics"
	"github.com/vovakirdan/chatdispatch/internal/proto"
	"github.com/vovakirdan/chatdispatch/internal/utils"
)

const disconnectTimeout = 2 * time.Second

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub    *core.Hub
	fanout *core.Fanout
	auth   *auth.Service
	cfg    config.WSConfig
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil.
func NewWSHandler(hub *core.Hub, fanout *core.Fanout, authService *auth.Service, cfg config.WSConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, fanout: fanout, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.cfg.SendBuffer)
	h.fanout.Attach(client)
	metrics.WSConnections.Inc()
	h.log.Debug().Str("conn_id", client.ID).Str("remote", r.RemoteAddr).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if errors.Is(err, core.ErrHubStopped) {
			status = websocket.StatusGoingAway
			reason = "server shutting down"
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.release(client, reason)
	conn.Close(status, reason)
}

// release tears down the session before the client stops being addressable,
// so the leave notifications still reach everyone else.
func (h *WSHandler) release(client *core.Client, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := h.hub.Disconnect(ctx, client.ID, reason); err != nil && !errors.Is(err, core.ErrHubStopped) {
		h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("disconnect")
	}
	h.fanout.Detach(client.ID)
	metrics.WSConnections.Dec()
	h.log.Debug().Str("conn_id", client.ID).Str("reason", reason).Msg("ws disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RatePerSecond, h.cfg.RateBurst)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed ws frame")
			if err := wsjson.Write(ctx, conn, errorOutbound(0, badRequest())); err != nil {
				return err
			}
			continue
		}

		// Typing is fire-and-forget: failures are dropped without an ack.
		silent := inbound.Type == proto.InboundTypeTyping

		if !limiter.allow() {
			metrics.RateLimited.Inc()
			if silent {
				continue
			}
			if err := wsjson.Write(ctx, conn, errorOutbound(inbound.ID, &proto.ErrorAck{
				Error: "Too many events",
				Code:  ErrCodeRateLimited,
			})); err != nil {
				return err
			}
			continue
		}

		cmd, errAck := inboundToCommand(inbound)
		if errAck != nil {
			if silent {
				continue
			}
			if err := wsjson.Write(ctx, conn, errorOutbound(inbound.ID, errAck)); err != nil {
				return err
			}
			continue
		}

		ack, err := h.hub.Do(ctx, client.ID, cmd)
		if err != nil {
			return err
		}
		if cmd.Kind == core.CommandTyping {
			continue
		}

		if err := wsjson.Write(ctx, conn, ackToOutbound(inbound.ID, cmd.Kind, ack, h.uploadToken(cmd.Kind, ack))); err != nil {
			h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws ack")
			return err
		}
	}
}

func (h *WSHandler) uploadToken(kind core.CommandKind, ack core.Ack) string {
	if h.auth == nil || kind != core.CommandRegister || !ack.OK() {
		return ""
	}
	token, err := h.auth.IssueUploadToken(ack.Username)
	if err != nil {
		h.log.Error().Err(err).Str("username", ack.Username).Msg("issue upload token")
		return ""
	}
	return token
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
