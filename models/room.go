package models

import (
	"strings"
	"time"
)

// WordEntry はルームの単語帳の1エントリ
type WordEntry struct {
	Word    string    `json:"word"`
	AddedBy string    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}

// LogEntry はチャット/システム通知のログ
type LogEntry struct {
	Type      EventType `json:"type"` // "chat" または "system"
	Sender    string    `json:"sender,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is the durable room document. The whole struct is persisted as one unit,
// so every field is serialisable.
type Room struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Host         string       `json:"host"`
	Members      []string     `json:"members"`
	Words        []WordEntry  `json:"words"`
	Log          []LogEntry   `json:"log"`
	IsPrivate    bool         `json:"isPrivate"`
	PasswordHash string       `json:"passwordHash,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	GameState    *GameSession `json:"gameState,omitempty"`
	Scores       []ScoreEntry `json:"scores"`
	Version      int64        `json:"version"`
}

// IsMember reports whether username belongs to the room.
func (r *Room) IsMember(username string) bool {
	return r.memberIndex(username) >= 0
}

func (r *Room) memberIndex(username string) int {
	for i, m := range r.Members {
		if m == username {
			return i
		}
	}
	return -1
}

// RemoveMember removes username and reports whether it was present.
func (r *Room) RemoveMember(username string) bool {
	i := r.memberIndex(username)
	if i < 0 {
		return false
	}
	r.Members = append(r.Members[:i], r.Members[i+1:]...)
	return true
}

// WordIndex は大文字小文字を区別せずに単語の位置を返す。なければ -1
func (r *Room) WordIndex(word string) int {
	for i, w := range r.Words {
		if strings.EqualFold(w.Word, word) {
			return i
		}
	}
	return -1
}

// ActiveSession returns the session only while it is running.
func (r *Room) ActiveSession() *GameSession {
	if r.GameState != nil && r.GameState.Active {
		return r.GameState
	}
	return nil
}

// AppendLog keeps only the most recent limit entries.
func (r *Room) AppendLog(entry LogEntry, limit int) {
	r.Log = append(r.Log, entry)
	if limit > 0 && len(r.Log) > limit {
		r.Log = append([]LogEntry(nil), r.Log[len(r.Log)-limit:]...)
	}
}

// RoomSummary is the list/create view of a room.
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Host        string    `json:"host"`
	IsPrivate   bool      `json:"isPrivate"`
	MemberCount int       `json:"memberCount"`
	WordCount   int       `json:"wordCount"`
	GameActive  bool      `json:"gameActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summary builds the list view of the room.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Host:        r.Host,
		IsPrivate:   r.IsPrivate,
		MemberCount: len(r.Members),
		WordCount:   len(r.Words),
		GameActive:  r.ActiveSession() != nil,
		CreatedAt:   r.CreatedAt,
	}
}

// RoomDetails is the full room as exposed to callers: no password hash and no
// secret word.
type RoomDetails struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Host        string       `json:"host"`
	Members     []string     `json:"members"`
	Words       []WordEntry  `json:"words"`
	Log         []LogEntry   `json:"log"`
	IsPrivate   bool         `json:"isPrivate"`
	CreatedAt   time.Time    `json:"createdAt"`
	GameState   GameView     `json:"gameState"`
	Scores      []ScoreEntry `json:"scores"`
	Version     int64        `json:"version"`
}

// Details strips the secrets from the room.
func (r *Room) Details() RoomDetails {
	return RoomDetails{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Host:        r.Host,
		Members:     r.Members,
		Words:       r.Words,
		Log:         r.Log,
		IsPrivate:   r.IsPrivate,
		CreatedAt:   r.CreatedAt,
		GameState:   r.GameState.View(false),
		Scores:      r.visibleScores(),
		Version:     r.Version,
	}
}

// visibleScores hides entries for the running session's word until it ends.
func (r *Room) visibleScores() []ScoreEntry {
	s := r.ActiveSession()
	if s == nil {
		return r.Scores
	}
	out := make([]ScoreEntry, 0, len(r.Scores))
	for _, e := range r.Scores {
		if !strings.EqualFold(e.Word, s.Word) {
			out = append(out, e)
		}
	}
	return out
}

// Visibility filters room listings.
type Visibility string

const (
	VisibilityAll     Visibility = "all"
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// SortField is one of the sortable room listing columns.
type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortByName        SortField = "name"
	SortByMemberCount SortField = "memberCount"
	SortByWordCount   SortField = "wordCount"
)

// Valid reports whether the field is sortable.
func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByName, SortByMemberCount, SortByWordCount:
		return true
	}
	return false
}
