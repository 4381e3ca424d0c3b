// Package rooms handles room membership, host transfer, chat and deletion.
package rooms

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"wordroom/database"
	"wordroom/models"
	"wordroom/wordle/game"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MaxChatLength is the longest chat message accepted, in runes.
	MaxChatLength = 500
	// TestRoomPrefix marks rooms removed by PurgeTestRooms.
	TestRoomPrefix = "test"
)

// Member actions accepted by UpdateMember.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Broadcaster delivers committed events to a room's connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, events ...models.Event)
}

// Manager owns room lifecycle. Every change is a single atomic room update,
// and events are broadcast only after the update is committed.
type Manager struct {
	store    database.RoomStore
	accounts database.AccountStore
	hub      Broadcaster
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(store database.RoomStore, accounts database.AccountStore, hub Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		accounts: accounts,
		hub:      hub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRoomRequest struct {
	Name        string
	Host        string
	IsPrivate   bool
	Password    string
	Description string
}

// CreateRoom creates a room whose only member is the host.
func (m *Manager) CreateRoom(ctx context.Context, req CreateRoomRequest) (models.RoomSummary, error) {
	name := strings.TrimSpace(req.Name)
	host := strings.TrimSpace(req.Host)
	if name == "" {
		return models.RoomSummary{}, models.Validation("room name is required")
	}
	if host == "" {
		return models.RoomSummary{}, models.Validation("host username is required")
	}

	now := m.now()
	room := &models.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Host:        host,
		Members:     []string{host},
		Words:       []models.WordEntry{},
		Log:         []models.LogEntry{},
		Scores:      []models.ScoreEntry{},
		IsPrivate:   req.IsPrivate,
		CreatedAt:   now,
	}
	if req.IsPrivate && req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.RoomSummary{}, models.Internal(err, "hash room password")
		}
		room.PasswordHash = string(hash)
	}
	room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: fmt.Sprintf("%s created the room", host), Timestamp: now}, game.LogLimit)

	if _, err := m.accounts.FindOrCreateUser(ctx, host); err != nil {
		return models.RoomSummary{}, err
	}
	if err := m.store.Create(ctx, room); err != nil {
		return models.RoomSummary{}, err
	}
	m.logger.Info("room created", zap.String("roomID", room.ID), zap.String("host", host), zap.Bool("private", room.IsPrivate))
	return room.Summary(), nil
}

// ListQuery selects and orders a room listing.
type ListQuery struct {
	Visibility models.Visibility
	SortBy     models.SortField
	Descending bool
	Limit      int
}

func (m *Manager) ListRooms(ctx context.Context, q ListQuery) ([]models.RoomSummary, error) {
	switch q.Visibility {
	case "":
		q.Visibility = models.VisibilityAll
	case models.VisibilityAll, models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return nil, models.Validation("unknown visibility %q", q.Visibility)
	}
	if q.SortBy == "" {
		q.SortBy = models.SortByCreatedAt
	}
	if !q.SortBy.Valid() {
		return nil, models.Validation("cannot sort rooms by %q", q.SortBy)
	}

	rooms, err := m.store.List(ctx, database.RoomQuery{
		Visibility: q.Visibility,
		SortBy:     q.SortBy,
		Descending: q.Descending,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		out = append(out, rooms[i].Summary())
	}
	return out, nil
}

// GetRoom returns the room without its password hash or secret word.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (models.RoomDetails, error) {
	room, err := m.store.Get(ctx, roomID)
	if err != nil {
		return models.RoomDetails{}, err
	}
	return room.Details(), nil
}

func passwordMatches(room *models.Room, password string) bool {
	if room.PasswordHash == "" {
		return password == ""
	}
	return bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)) == nil
}

type JoinResult struct {
	AlreadyMember bool               `json:"alreadyMember"`
	Room          models.RoomSummary `json:"room"`
}

// JoinRoom adds username to the room. Existing members rejoin without a
// password check; everyone else needs the exact password of a private room.
func (m *Manager) JoinRoom(ctx context.Context, roomID, username, password string) (JoinResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return JoinResult{}, models.Validation("username is required")
	}

	// bcrypt is slow, so the password is checked before taking the room lock.
	room, err := m.store.Get(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}
	if !room.IsMember(username) && room.IsPrivate && !passwordMatches(room, password) {
		return JoinResult{}, models.Forbidden("wrong password for room %s", room.Name)
	}
	if _, err := m.accounts.FindOrCreateUser(ctx, username); err != nil {
		return JoinResult{}, err
	}

	now := m.now()
	already := false
	room, err = m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		already = room.IsMember(username)
		if already {
			return database.Skip, nil
		}
		room.Members = append(room.Members, username)
		room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: fmt.Sprintf("%s joined the room", username), Timestamp: now}, game.LogLimit)
		return database.Save, nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	if !already {
		m.hub.Broadcast(ctx, roomID, models.NewEvent(roomID, room.Version, now, models.MemberJoined{
			Username: username,
			Members:  room.Members,
		}))
		m.logger.Info("member joined", zap.String("roomID", roomID), zap.String("username", username))
	}
	return JoinResult{AlreadyMember: already, Room: room.Summary()}, nil
}

type LeaveResult struct {
	// WasMember is false when the call was a no-op.
	WasMember   bool   `json:"wasMember"`
	RoomDeleted bool   `json:"roomDeleted"`
	NewHost     string `json:"newHost,omitempty"`
}

// LeaveRoom removes username. The last member leaving deletes the room; a
// departing host hands over to the first remaining member. A player leaving
// an active game keeps their progress entry, flagged as left.
func (m *Manager) LeaveRoom(ctx context.Context, roomID, username string) (LeaveResult, error) {
	return m.removeMember(ctx, roomID, username, false, "")
}

// hostRemoval checks, against the locked room, that acting may remove target.
func hostRemoval(room *models.Room, acting, target string) error {
	if room.Host != acting {
		return models.Forbidden("only the host can manage members")
	}
	if target == room.Host {
		return models.Validation("the host cannot be removed")
	}
	if !room.IsMember(target) {
		return models.NotFound("%s is not a member of this room", target)
	}
	return nil
}

// removeMember takes username out of the room. With removed set, acting is
// the host removing a member and its permission is checked inside the same
// update.
func (m *Manager) removeMember(ctx context.Context, roomID, username string, removed bool, acting string) (LeaveResult, error) {
	var (
		result  LeaveResult
		outcome game.Outcome
		version int64
		members []string
		now     = m.now()
	)
	_, err := m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		result, outcome = LeaveResult{}, game.Outcome{}
		if removed {
			if err := hostRemoval(room, acting, username); err != nil {
				return database.Skip, err
			}
		}
		if !room.RemoveMember(username) {
			return database.Skip, nil
		}
		result.WasMember = true
		version = room.Version + 1
		outcome = game.Leave(room, username, now)

		if len(room.Members) == 0 {
			result.RoomDeleted = true
			return database.Delete, nil
		}
		if room.Host == username {
			room.Host = room.Members[0]
			result.NewHost = room.Host
		}
		members = append([]string(nil), room.Members...)
		room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: leaveNotice(username, removed, result.NewHost), Timestamp: now}, game.LogLimit)
		return database.Save, nil
	})
	if err != nil {
		return LeaveResult{}, err
	}
	if !result.WasMember {
		return result, nil
	}

	events := []models.Event{models.NewEvent(roomID, version, now, models.MemberLeft{
		Username:    username,
		Members:     members,
		NewHost:     result.NewHost,
		RoomDeleted: result.RoomDeleted,
		Removed:     removed,
	})}
	events = append(events, game.OverEvents(roomID, version, now, outcome.Over)...)
	m.hub.Broadcast(ctx, roomID, events...)
	m.logger.Info("member left",
		zap.String("roomID", roomID),
		zap.String("username", username),
		zap.Bool("removed", removed),
		zap.Bool("roomDeleted", result.RoomDeleted))

	if err := game.RecordScores(ctx, m.accounts, outcome.Scores); err != nil {
		m.logger.Error("failed to record abandoned game", zap.String("roomID", roomID), zap.Error(err))
		return result, models.Internal(err, "record scores")
	}
	return result, nil
}

func leaveNotice(username string, removed bool, newHost string) string {
	msg := fmt.Sprintf("%s left the room", username)
	if removed {
		msg = fmt.Sprintf("%s was removed from the room", username)
	}
	if newHost != "" {
		msg += fmt.Sprintf("; %s is now the host", newHost)
	}
	return msg
}

// UpdateMember lets the host add an existing user to the room or remove a
// member. The host cannot remove themself.
func (m *Manager) UpdateMember(ctx context.Context, roomID, acting, target, action string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return models.Validation("target username is required")
	}
	if action != ActionAdd && action != ActionRemove {
		return models.Validation("unknown member action %q", action)
	}

	if action == ActionRemove {
		_, err := m.removeMember(ctx, roomID, target, true, acting)
		return err
	}

	room, err := m.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Host != acting {
		return models.Forbidden("only the host can manage members")
	}

	if _, err := m.accounts.FindUser(ctx, target); err != nil {
		return err
	}
	now := m.now()
	added := false
	room, err = m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		if room.Host != acting {
			return database.Skip, models.Forbidden("only the host can manage members")
		}
		if room.IsMember(target) {
			return database.Skip, nil
		}
		room.Members = append(room.Members, target)
		room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: fmt.Sprintf("%s was added by %s", target, acting), Timestamp: now}, game.LogLimit)
		added = true
		return database.Save, nil
	})
	if err != nil {
		return err
	}
	if added {
		m.hub.Broadcast(ctx, roomID, models.NewEvent(roomID, room.Version, now, models.MemberJoined{
			Username: target,
			Members:  room.Members,
		}))
	}
	return nil
}

// PostChat appends a member's message to the room log and broadcasts it.
func (m *Manager) PostChat(ctx context.Context, roomID, username, content string) (models.Event, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Event{}, models.Validation("message is empty")
	}
	if utf8.RuneCountInString(content) > MaxChatLength {
		return models.Event{}, models.Validation("message is longer than %d characters", MaxChatLength)
	}

	now := m.now()
	room, err := m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		if !room.IsMember(username) {
			return database.Skip, models.Forbidden("%s is not a member of this room", username)
		}
		room.AppendLog(models.LogEntry{Type: models.EventChat, Sender: username, Content: content, Timestamp: now}, game.LogLimit)
		return database.Save, nil
	})
	if err != nil {
		return models.Event{}, err
	}
	event := models.NewEvent(roomID, room.Version, now, models.Chat{Sender: username, Content: content})
	m.hub.Broadcast(ctx, roomID, event)
	return event, nil
}

// PurgeTestRooms deletes rooms whose name starts with "test" (any case). With
// olderThan > 0 only rooms created before now-olderThan are removed.
func (m *Manager) PurgeTestRooms(ctx context.Context, olderThan time.Duration) (int64, error) {
	filter := database.RoomFilter{NamePrefix: TestRoomPrefix}
	if olderThan > 0 {
		filter.CreatedBefore = m.now().Add(-olderThan)
	}
	n, err := m.store.DeleteWhere(ctx, filter)
	if err != nil {
		return 0, err
	}
	m.logger.Info("test rooms purged", zap.Int64("deleted", n))
	return n, nil
}
