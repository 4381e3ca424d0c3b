package handlers

import (
	"net/http"

	"wordroom/models"
	"wordroom/wordle/game"

	"github.com/gin-gonic/gin"
)

type startGameRequest struct {
	Username     string `json:"username"`
	OwnerPlaying *bool  `json:"ownerPlaying"`
	AutoSelect   int    `json:"autoSelect"`
}

// StartGame starts a session. ownerPlaying defaults to true.
func (h *Handler) StartGame(c *gin.Context) {
	var req startGameRequest
	if !h.bind(c, &req) {
		return
	}
	opts := game.StartOptions{OwnerPlaying: true, AutoSelect: req.AutoSelect}
	if req.OwnerPlaying != nil {
		opts.OwnerPlaying = *req.OwnerPlaying
	}
	res, err := h.Game.StartGame(c.Request.Context(), c.Param("roomId"), req.Username, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"word":          res.Word,
		"playerCount":   res.PlayerCount,
		"players":       res.Players,
		"selectionMode": res.SelectionMode,
	})
}

type progressRequest struct {
	Username     string       `json:"username"`
	BoardData    models.Board `json:"boardData"`
	AttemptIndex int          `json:"attemptIndex"`
	GameOver     bool         `json:"gameOver"`
	Won          bool         `json:"won"`
}

func (h *Handler) SubmitProgress(c *gin.Context) {
	var req progressRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Game.SubmitProgress(c.Request.Context(), c.Param("roomId"), req.Username, game.Submission{
		Board:        req.BoardData,
		AttemptIndex: req.AttemptIndex,
		GameOver:     req.GameOver,
		Won:          req.Won,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "progress": res})
}

func (h *Handler) GameState(c *gin.Context) {
	view, err := h.Game.GameState(c.Request.Context(), c.Param("roomId"), c.Query("username"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
