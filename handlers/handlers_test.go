package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wordroom/database"
	"wordroom/handlers"
	"wordroom/models"
	"wordroom/wordle/broadcast"
	"wordroom/wordle/connection"
	"wordroom/wordle/game"
	"wordroom/wordle/leaderboard"
	"wordroom/wordle/rooms"
	"wordroom/wordle/words"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := database.NewMemoryRoomStore()
	accounts := database.NewMemoryAccountStore()
	hub := broadcast.NewHub(logger)
	t.Cleanup(hub.Close)

	bank := words.NewBank(store, words.NewRand(1), logger)
	manager := rooms.NewManager(store, accounts, hub, logger)
	h := &handlers.Handler{
		Rooms:       manager,
		Words:       bank,
		Game:        game.NewMachine(store, accounts, hub, bank.Rand(), logger),
		Leaderboard: leaderboard.NewAggregator(store, accounts),
		Accounts:    accounts,
		Hub:         hub,
		Conns:       connection.NewServer(hub, manager, 10, 10, logger),
		Sessions:    connection.NoSessions{},
		Upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		Logger:      logger,
	}
	router := gin.New()
	h.Register(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func createRoom(t *testing.T, router http.Handler, name, host string, private bool, password string) string {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/rooms", gin.H{
		"room_data": gin.H{"name": name, "isPrivate": private, "password": password},
		"user":      gin.H{"username": host},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[map[string]string](t, w)["roomId"]
}

func join(t *testing.T, router http.Handler, roomID, user, password string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost, "/api/rooms/join", gin.H{
		"join_data": gin.H{"roomId": roomID, "password": password},
		"user":      gin.H{"username": user},
	})
}

func addWord(t *testing.T, router http.Handler, roomID, user, word string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost, "/api/rooms/words", gin.H{
		"add_data": gin.H{"roomId": roomID, "word": word},
		"user":     gin.H{"username": user},
	})
}

func TestHealth(t *testing.T) {
	router := newRouter(t)
	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginAndSoloScore(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/api/users/login", gin.H{"username": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/users/login", gin.H{"username": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, w)["username"])

	w = do(t, router, http.MethodPost, "/api/scores", gin.H{"username": "ghost", "word": "CRANE", "won": true, "attempts": 3})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, w).Error)

	w = do(t, router, http.MethodPost, "/api/scores", gin.H{"username": "alice", "word": "CRANE", "won": true, "attempts": 3, "roomId": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]models.GlobalStats](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, models.GlobalStats{Username: "alice", WordsSolved: 1, GamesPlayed: 1}, rows[0])
}

func TestRoomFlow(t *testing.T) {
	router := newRouter(t)

	w := do(t, router, http.MethodPost, "/api/rooms", gin.H{"room_data": gin.H{"name": ""}, "user": gin.H{"username": "alice"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[errorBody](t, w).Error)

	id := createRoom(t, router, "R", "alice", false, "")

	require.Equal(t, http.StatusOK, addWord(t, router, id, "alice", "python").Code)
	assert.Equal(t, http.StatusBadRequest, addWord(t, router, id, "alice", "AB").Code)
	assert.Equal(t, http.StatusBadRequest, addWord(t, router, id, "alice", "Python").Code)
	assert.Equal(t, http.StatusForbidden, addWord(t, router, id, "bob", "GOLANG").Code)

	w = join(t, router, id, "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["alreadyMember"])

	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/words", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PYTHON", decode[map[string]string](t, w)["word"])

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/start", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/start", gin.H{"username": "alice", "autoSelect": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[map[string]any](t, w)
	assert.Equal(t, "PYTHON", started["word"])
	assert.Equal(t, float64(2), started["playerCount"])

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/start", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/game?username=carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.GameView](t, w).Word)

	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/game?username=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PYTHON", decode[models.GameView](t, w).Word)

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/progress", gin.H{
		"username": "bob", "attemptIndex": 2, "gameOver": true, "won": true,
		"boardData": [][]gin.H{{{"letter": "P", "status": "correct"}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/progress", gin.H{"username": "bob", "attemptIndex": 2, "gameOver": true, "won": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/progress", gin.H{"username": "alice", "attemptIndex": 5, "gameOver": true, "won": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/game?username=alice", nil)
	view := decode[models.GameView](t, w)
	assert.False(t, view.Active)
	assert.Equal(t, "bob", view.Winner)
	assert.NotNil(t, view.EndedAt)

	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[[]models.PlayerStats](t, w)
	require.Len(t, board, 2)
	assert.Equal(t, models.PlayerStats{Username: "bob", GamesPlayed: 1, WordsSolved: 1, AverageAttempts: 3}, board[0])

	w = do(t, router, http.MethodDelete, "/api/rooms/"+id+"/words/python?username=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/api/rooms/"+id+"/words", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/leave", gin.H{"username": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decode[map[string]any](t, w)["newHost"])

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/leave", gin.H{"username": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["roomDeleted"])

	w = do(t, router, http.MethodGet, "/api/rooms/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrivateRoomAndListing(t *testing.T) {
	router := newRouter(t)
	private := createRoom(t, router, "Secret", "alice", true, "secret1")
	public := createRoom(t, router, "Open", "bob", false, "")

	assert.Equal(t, http.StatusForbidden, join(t, router, private, "carol", "").Code)
	assert.Equal(t, http.StatusOK, join(t, router, private, "carol", "secret1").Code)
	assert.Equal(t, http.StatusNotFound, join(t, router, "nope", "carol", "").Code)

	w := do(t, router, http.MethodGet, "/api/rooms/"+private, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	details := decode[map[string]any](t, w)
	assert.Equal(t, []any{}, details["online"])
	assert.Equal(t, []any{"alice", "carol"}, details["members"])

	w = do(t, router, http.MethodGet, "/api/rooms?is_public=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.RoomSummary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, public, list[0].ID)

	w = do(t, router, http.MethodGet, "/api/rooms?visibility=all&sort=memberCount&order=desc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[[]models.RoomSummary](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, private, list[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/rooms?sort=colour", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/rooms?order=sideways", nil).Code)
}

func TestUpdateMemberAndPurge(t *testing.T) {
	router := newRouter(t)
	id := createRoom(t, router, "test room", "alice", false, "")
	createRoom(t, router, "Keep me", "bob", false, "")

	member := func(acting, target, action string) int {
		return do(t, router, http.MethodPost, "/api/rooms/members", gin.H{
			"update_data": gin.H{"roomId": id, "username": target, "action": action},
			"user":        gin.H{"username": acting},
		}).Code
	}
	assert.Equal(t, http.StatusNotFound, member("alice", "ghost", "add"))
	assert.Equal(t, http.StatusOK, member("alice", "bob", "add"))
	assert.Equal(t, http.StatusForbidden, member("bob", "alice", "remove"))
	assert.Equal(t, http.StatusBadRequest, member("alice", "alice", "remove"))
	assert.Equal(t, http.StatusOK, member("alice", "bob", "remove"))

	w := do(t, router, http.MethodDelete, "/api/rooms/test?older_than=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/rooms/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["deletedCount"])
}

func TestWebsocketReceivesRoomEvents(t *testing.T) {
	router := newRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	id := createRoom(t, router, "R", "alice", false, "")
	require.Equal(t, http.StatusOK, addWord(t, router, id, "alice", "python").Code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/" + id + "?username=alice"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/missing?username=alice", nil)
	assert.Error(t, err)

	read := func() models.Event {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var e models.Event
		require.NoError(t, ws.ReadJSON(&e))
		return e
	}

	// the subscription is registered by the time the chat frame is read back
	require.NoError(t, ws.WriteJSON(gin.H{"type": "chat", "content": "hi all"}))
	e := read()
	require.Equal(t, models.EventChat, e.Type)
	assert.Equal(t, "hi all", e.Payload.(models.Chat).Content)

	w := do(t, router, http.MethodGet, "/api/rooms/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"alice"}, decode[map[string]any](t, w)["online"])

	require.Equal(t, http.StatusOK, join(t, router, id, "bob", "").Code)
	e = read()
	require.Equal(t, models.EventMemberJoined, e.Type)
	assert.Equal(t, []string{"alice", "bob"}, e.Payload.(models.MemberJoined).Members)

	w = do(t, router, http.MethodPost, "/api/rooms/"+id+"/game/start", gin.H{"username": "alice", "ownerPlaying": false})
	require.Equal(t, http.StatusOK, w.Code)
	e = read()
	require.Equal(t, models.EventGameStart, e.Type)
	assert.Empty(t, e.Payload.(models.GameStart).Word, "host is not a player and must not see the word")
	assert.Equal(t, 6, e.Payload.(models.GameStart).WordLength)
	e = read()
	assert.Equal(t, models.EventSystem, e.Type)
}
