package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"wordroom/models"
	"wordroom/wordle/rooms"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	RoomData struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"isPrivate"`
		Password    string `json:"password"`
	} `json:"room_data"`
	User userRef `json:"user"`
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !h.bind(c, &req) {
		return
	}
	summary, err := h.Rooms.CreateRoom(c.Request.Context(), rooms.CreateRoomRequest{
		Name:        req.RoomData.Name,
		Host:        req.User.Username,
		IsPrivate:   req.RoomData.IsPrivate,
		Password:    req.RoomData.Password,
		Description: req.RoomData.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": summary.ID, "name": summary.Name, "host": summary.Host})
}

// ListRooms accepts visibility=all|public|private (or the older is_public=true|false),
// sort=createdAt|name|memberCount|wordCount and order=asc|desc (default desc).
func (h *Handler) ListRooms(c *gin.Context) {
	q := rooms.ListQuery{
		Visibility: models.Visibility(c.DefaultQuery("visibility", string(models.VisibilityAll))),
		SortBy:     models.SortField(c.DefaultQuery("sort", string(models.SortByCreatedAt))),
	}
	if raw, ok := c.GetQuery("is_public"); ok {
		public, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(c, models.Validation("is_public must be true or false"))
			return
		}
		q.Visibility = models.VisibilityPrivate
		if public {
			q.Visibility = models.VisibilityPublic
		}
	}
	switch strings.ToLower(c.DefaultQuery("order", "desc")) {
	case "desc":
		q.Descending = true
	case "asc":
	default:
		h.respondError(c, models.Validation("order must be asc or desc"))
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.respondError(c, models.Validation("limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	list, err := h.Rooms.ListRooms(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type roomResponse struct {
	models.RoomDetails
	// Online lists the members with an open connection to this instance.
	Online []string `json:"online"`
}

func (h *Handler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	room, err := h.Rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	online := append([]string{}, h.Hub.Subscribers(roomID)...)
	sort.Strings(online)
	c.JSON(http.StatusOK, roomResponse{RoomDetails: room, Online: online})
}

type joinRoomRequest struct {
	JoinData struct {
		RoomID   string `json:"roomId"`
		Password string `json:"password"`
	} `json:"join_data"`
	User userRef `json:"user"`
}

func (h *Handler) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Rooms.JoinRoom(c.Request.Context(), req.JoinData.RoomID, req.User.Username, req.JoinData.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alreadyMember": res.AlreadyMember, "room": res.Room})
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	var req userRef
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Rooms.LeaveRoom(c.Request.Context(), c.Param("roomId"), req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "roomDeleted": res.RoomDeleted, "newHost": res.NewHost})
}

type addWordRequest struct {
	AddData struct {
		RoomID string `json:"roomId"`
		Word   string `json:"word"`
	} `json:"add_data"`
	User userRef `json:"user"`
}

func (h *Handler) AddWord(c *gin.Context) {
	var req addWordRequest
	if !h.bind(c, &req) {
		return
	}
	entry, err := h.Words.AddWord(c.Request.Context(), req.AddData.RoomID, req.User.Username, req.AddData.Word)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "word": entry})
}

// RemoveWord takes the acting user from ?username= or from a {"user":{...}} body.
func (h *Handler) RemoveWord(c *gin.Context) {
	username := c.Query("username")
	if username == "" && c.Request.ContentLength != 0 {
		var body struct {
			User userRef `json:"user"`
		}
		if !h.bind(c, &body) {
			return
		}
		username = body.User.Username
	}
	removed, err := h.Words.RemoveWord(c.Request.Context(), c.Param("roomId"), username, c.Param("word"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

func (h *Handler) RandomWord(c *gin.Context) {
	word, err := h.Words.RandomWord(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"word": word})
}

type updateMemberRequest struct {
	UpdateData struct {
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
		Action   string `json:"action"`
	} `json:"update_data"`
	User userRef `json:"user"`
}

func (h *Handler) UpdateMember(c *gin.Context) {
	var req updateMemberRequest
	if !h.bind(c, &req) {
		return
	}
	d := req.UpdateData
	if err := h.Rooms.UpdateMember(c.Request.Context(), d.RoomID, req.User.Username, d.Username, d.Action); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PurgeTestRooms deletes test rooms, optionally only those older than
// ?older_than= (a Go duration such as 24h).
func (h *Handler) PurgeTestRooms(c *gin.Context) {
	var olderThan time.Duration
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			h.respondError(c, models.Validation("older_than must be a positive duration"))
			return
		}
		olderThan = d
	}
	n, err := h.Rooms.PurgeTestRooms(c.Request.Context(), olderThan)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": n})
}
