// Package handlers exposes the room coordinator over HTTP and websockets.
package handlers

import (
	"context"
	"net/http"
	"time"

	"wordroom/models"
	"wordroom/wordle/connection"
	"wordroom/wordle/game"
	"wordroom/wordle/leaderboard"
	"wordroom/wordle/rooms"
	"wordroom/wordle/words"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Accounts is the part of the account store the HTTP layer uses directly.
type Accounts interface {
	FindOrCreateUser(ctx context.Context, username string) (models.User, error)
}

// Presence reports who is connected to a room on this instance.
type Presence interface {
	Subscribers(roomID string) []string
}

// Handler holds the services behind every route.
type Handler struct {
	Rooms       *rooms.Manager
	Words       *words.Bank
	Game        *game.Machine
	Leaderboard *leaderboard.Aggregator
	Accounts    Accounts
	Hub         Presence
	Conns       *connection.Server
	Sessions    connection.Sessions
	Upgrader    websocket.Upgrader
	Logger      *zap.Logger
}

// Register adds every route to router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := router.Group("/api")
	api.POST("/users/login", h.Login)
	api.POST("/scores", h.RecordScore)
	api.GET("/leaderboard", h.GlobalLeaderboard)

	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms/join", h.JoinRoom)
	api.POST("/rooms/words", h.AddWord)
	api.POST("/rooms/members", h.UpdateMember)
	// "test" は静的セグメントなので :roomId より優先される
	api.DELETE("/rooms/test", h.PurgeTestRooms)
	api.GET("/rooms/:roomId", h.GetRoom)
	api.POST("/rooms/:roomId/leave", h.LeaveRoom)
	api.GET("/rooms/:roomId/words", h.RandomWord)
	api.DELETE("/rooms/:roomId/words/:word", h.RemoveWord)
	api.POST("/rooms/:roomId/game/start", h.StartGame)
	api.POST("/rooms/:roomId/game/progress", h.SubmitProgress)
	api.GET("/rooms/:roomId/game", h.GameState)
	api.GET("/rooms/:roomId/leaderboard", h.RoomLeaderboard)

	api.GET("/ws/:roomId", h.Subscribe)
}

var statusByKind = map[models.ErrorKind]int{
	models.KindValidation: http.StatusBadRequest,
	models.KindNotFound:   http.StatusNotFound,
	models.KindForbidden:  http.StatusForbidden,
	models.KindConflict:   http.StatusConflict,
	models.KindInternal:   http.StatusInternalServerError,
}

// respondError writes {"error": kind, "detail": message}. Internal causes are
// logged and replaced with a generic message.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if kind == models.KindInternal {
		h.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "detail": models.MessageOf(err)})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, models.Validation("invalid request body: %v", err))
		return false
	}
	return true
}
