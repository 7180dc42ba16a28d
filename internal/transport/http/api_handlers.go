package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/proto"
)

// APIHandlers exposes read-only views of hub state over HTTP.
// Every read goes through the hub so it sees a consistent snapshot.
type APIHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{hub: hub, log: logger}
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	History []proto.MessagePayload `json:"history"`
}

// RoomResponse is one entry of GET /api/rooms.
type RoomResponse struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// UsersResponse is the body of GET /api/users.
type UsersResponse struct {
	Users []string `json:"users"`
}

// History returns a channel's recent messages.
// GET /api/history?type=room&name=general&limit=20
func (h *APIHandlers) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	ack, ok := h.do(c, core.Command{
		Kind:        core.CommandGetHistory,
		HistoryType: c.DefaultQuery("type", core.HistoryTypeGlobal),
		HistoryName: c.Query("name"),
		Limit:       limit,
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{History: messagePayloads(ack.History)})
}

// Rooms lists every room with its current members.
// GET /api/rooms
func (h *APIHandlers) Rooms(c *gin.Context) {
	ack, ok := h.do(c, core.Command{Kind: core.CommandListRooms})
	if !ok {
		return
	}
	rooms := make([]RoomResponse, 0, len(ack.Rooms))
	for _, room := range ack.Rooms {
		rooms = append(rooms, RoomResponse{Name: room.Name, Users: nonNil(room.Users)})
	}
	c.JSON(http.StatusOK, rooms)
}

// Users lists the registered usernames.
// GET /api/users
func (h *APIHandlers) Users(c *gin.Context) {
	ack, ok := h.do(c, core.Command{Kind: core.CommandListUsers})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, UsersResponse{Users: nonNil(ack.Users)})
}

func (h *APIHandlers) do(c *gin.Context, cmd core.Command) (core.Ack, bool) {
	ack, err := h.hub.Do(c.Request.Context(), "", cmd)
	if err != nil {
		if errors.Is(err, core.ErrHubStopped) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server shutting down"})
			return core.Ack{}, false
		}
		h.log.Error().Err(err).Str("command", cmd.Kind.String()).Msg("api request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return core.Ack{}, false
	}
	if !ack.OK() {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ack.Err.Message})
		return core.Ack{}, false
	}
	return ack, true
}
