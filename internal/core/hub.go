package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/metrics"
	"github.com/vovakirdan/chatdispatch/internal/store"
)

// Options configures a Hub.
type Options struct {
	Rooms         []string
	DefaultRooms  []string
	PruneInterval time.Duration
	Clock         func() time.Time
	Logger        *zerolog.Logger
}

type request struct {
	connID string
	cmd    Command
	reply  chan Ack
}

// Hub owns sessions, room membership and history, and runs every command
// to completion on a single goroutine.
type Hub struct {
	ids       *Registry
	rooms     *RoomTable
	history   store.HistoryStore
	transport Transport

	requests   chan *request
	done       chan struct{}
	pruneEvery time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

// NewHub creates a hub. Run must be started before Do is called.
func NewHub(history store.HistoryStore, transport Transport, opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if len(opts.Rooms) == 0 && len(opts.DefaultRooms) == 0 {
		opts.Rooms = []string{"general", "random"}
		opts.DefaultRooms = []string{"general"}
	}

	return &Hub{
		ids:        NewRegistry(),
		rooms:      NewRoomTable(opts.Rooms, opts.DefaultRooms),
		history:    history,
		transport:  transport,
		requests:   make(chan *request),
		done:       make(chan struct{}),
		pruneEvery: opts.PruneInterval,
		now:        opts.Clock,
		log:        opts.Logger,
	}
}

// Run processes commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var tick <-chan time.Time
	if h.pruneEvery > 0 {
		ticker := time.NewTicker(h.pruneEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	h.log.Info().Strs("rooms", h.rooms.Names()).Dur("prune_interval", h.pruneEvery).Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub stopped")
			return
		case req := <-h.requests:
			req.reply <- h.dispatch(ctx, req.connID, req.cmd)
		case <-tick:
			h.dispatch(ctx, "", Command{Kind: CommandPrune})
		}
	}
}

// Do submits a command on behalf of a connection and waits for its ack.
func (h *Hub) Do(ctx context.Context, connID string, cmd Command) (Ack, error) {
	req := &request{connID: connID, cmd: cmd, reply: make(chan Ack, 1)}

	select {
	case h.requests <- req:
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	case <-h.done:
		return Ack{}, ErrHubStopped
	}

	select {
	case ack := <-req.reply:
		return ack, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	case <-h.done:
		select {
		case ack := <-req.reply:
			return ack, nil
		default:
			return Ack{}, ErrHubStopped
		}
	}
}

// Disconnect tears down the session bound to connID, if any.
func (h *Hub) Disconnect(ctx context.Context, connID, reason string) error {
	_, err := h.Do(ctx, connID, Command{Kind: CommandDisconnect, Reason: reason})
	return err
}

// Prune runs history maintenance now and returns the number of dropped messages.
func (h *Hub) Prune(ctx context.Context) (int, error) {
	ack, err := h.Do(ctx, "", Command{Kind: CommandPrune})
	if err != nil {
		return 0, err
	}
	return ack.Pruned, nil
}

func (h *Hub) dispatch(ctx context.Context, connID string, cmd Command) (ack Ack) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("conn_id", connID).
				Str("command", cmd.Kind.String()).
				Msg("command handler panicked")
			ack = failed(errInternal)
		}

		result := "ok"
		if ack.Err != nil {
			result = ack.Err.Code
		}
		metrics.CommandsTotal.WithLabelValues(cmd.Kind.String(), result).Inc()
		metrics.Sessions.Set(float64(h.ids.Len()))
	}()

	switch cmd.Kind {
	case CommandRegister:
		return h.handleRegister(connID, cmd)
	case CommandMessage:
		return h.handleMessage(ctx, connID, cmd)
	case CommandRoomMessage:
		return h.handleRoomMessage(ctx, connID, cmd)
	case CommandPrivateMessage:
		return h.handlePrivateMessage(ctx, connID, cmd)
	case CommandFileMessage:
		return h.handleFileMessage(ctx, connID, cmd)
	case CommandTyping:
		h.handleTyping(connID, cmd)
		return Ack{}
	case CommandJoinRoom:
		return h.handleJoinRoom(ctx, connID, cmd)
	case CommandGetHistory:
		return h.handleGetHistory(ctx, cmd)
	case CommandDisconnect:
		h.handleDisconnect(connID, cmd)
		return Ack{}
	case CommandListUsers:
		return Ack{Users: h.ids.Usernames()}
	case CommandListRooms:
		return h.handleListRooms()
	case CommandPrune:
		return h.handlePrune(ctx)
	default:
		h.log.Warn().Int("kind", int(cmd.Kind)).Msg("unknown command kind")
		return failed(errInternal)
	}
}
