package handlers

import (
	"net/http"
	"strings"

	"wordroom/models"

	"github.com/gin-gonic/gin"
)

type userRef struct {
	Username string `json:"username"`
}

// Login finds or creates the account for a username.
func (h *Handler) Login(c *gin.Context) {
	var req userRef
	if !h.bind(c, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		h.respondError(c, models.Validation("username is required"))
		return
	}
	user, err := h.Accounts.FindOrCreateUser(c.Request.Context(), username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "username": user.Username, "user": user})
}

type scoreRequest struct {
	Username string `json:"username"`
	Word     string `json:"word"`
	Won      bool   `json:"won"`
	Attempts int    `json:"attempts"`
	// RoomID is sent by the client but room scores come from game progress.
	RoomID *string `json:"roomId"`
}

// RecordScore records a solo game in the global history.
func (h *Handler) RecordScore(c *gin.Context) {
	var req scoreRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.Game.RecordSoloScore(c.Request.Context(), req.Username, req.Word, req.Won, req.Attempts); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GlobalLeaderboard(c *gin.Context) {
	rows, err := h.Leaderboard.GlobalLeaderboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) RoomLeaderboard(c *gin.Context) {
	rows, err := h.Leaderboard.RoomLeaderboard(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
