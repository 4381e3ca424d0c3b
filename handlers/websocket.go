package handlers

import (
	"net/http"
	"strings"

	"wordroom/models"
	"wordroom/wordle/connection"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHeader carries the reconnect session id on the upgrade response.
const SessionHeader = "X-Session-Id"

// Subscribe upgrades to a websocket subscribed to the room's events. A valid
// ?session= for this room overrides ?username=.
func (h *Handler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	username := strings.TrimSpace(c.Query("username"))

	if id := c.Query("session"); id != "" {
		s, err := h.Sessions.Resolve(ctx, id)
		switch {
		case err == nil && s.RoomID == roomID:
			username = s.Username
		case err != nil && models.KindOf(err) == models.KindInternal:
			h.respondError(c, err)
			return
		}
	}
	if username == "" {
		h.respondError(c, models.Validation("username is required"))
		return
	}
	if _, err := h.Rooms.GetRoom(ctx, roomID); err != nil {
		h.respondError(c, err)
		return
	}

	header := http.Header{}
	if id, err := h.Sessions.Issue(ctx, connection.Session{RoomID: roomID, Username: username}); err != nil {
		h.Logger.Warn("could not issue reconnect session", zap.Error(err))
	} else if id != "" {
		header.Set(SessionHeader, id)
	}

	ws, err := h.Upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.Logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	if err := h.Conns.Serve(ctx, roomID, username, connection.NewWebsocketConn(ws)); err != nil {
		h.Logger.Warn("websocket closed with error", zap.String("roomID", roomID), zap.Error(err))
	}
}
