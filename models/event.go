package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType はリアルタイムイベントの種類
type EventType string

const (
	EventMemberJoined   EventType = "member_joined"
	EventMemberLeft     EventType = "member_left"
	EventChat           EventType = "chat"
	EventSystem         EventType = "system"
	EventGameStart      EventType = "game_start"
	EventProgressUpdate EventType = "progress_update"
	EventGameOver       EventType = "game_over"
)

// Payload is implemented only by the event bodies in this file.
type Payload interface {
	EventType() EventType
	sealed()
}

type MemberJoined struct {
	Username string   `json:"username"`
	Members  []string `json:"members"`
}

type MemberLeft struct {
	Username    string   `json:"username"`
	Members     []string `json:"members"`
	NewHost     string   `json:"newHost,omitempty"`
	RoomDeleted bool     `json:"roomDeleted,omitempty"`
	Removed     bool     `json:"removed,omitempty"`
}

type Chat struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type System struct {
	Content string `json:"content"`
}

// GameStart carries Word only in the copy delivered to registered players.
type GameStart struct {
	StartedBy     string   `json:"startedBy"`
	WordLength    int      `json:"wordLength"`
	Word          string   `json:"word,omitempty"`
	Players       []string `json:"players"`
	SelectionMode string   `json:"selectionMode"`
}

type ProgressUpdate struct {
	Username  string     `json:"username"`
	Attempts  int        `json:"attempts"`
	Completed bool       `json:"completed"`
	Won       bool       `json:"won"`
	Pattern   [][]string `json:"pattern,omitempty"`
}

type PlayerResult struct {
	Username string `json:"username"`
	Won      bool   `json:"won"`
	Attempts int    `json:"attempts"`
	Left     bool   `json:"left,omitempty"`
}

type GameOver struct {
	Winner  string         `json:"winner,omitempty"`
	Draw    bool           `json:"draw"`
	Word    string         `json:"word"`
	Results []PlayerResult `json:"results"`
}

func (MemberJoined) EventType() EventType   { return EventMemberJoined }
func (MemberLeft) EventType() EventType     { return EventMemberLeft }
func (Chat) EventType() EventType           { return EventChat }
func (System) EventType() EventType         { return EventSystem }
func (GameStart) EventType() EventType      { return EventGameStart }
func (ProgressUpdate) EventType() EventType { return EventProgressUpdate }
func (GameOver) EventType() EventType       { return EventGameOver }

func (MemberJoined) sealed()   {}
func (MemberLeft) sealed()     {}
func (Chat) sealed()           {}
func (System) sealed()         {}
func (GameStart) sealed()      {}
func (ProgressUpdate) sealed() {}
func (GameOver) sealed()       {}

// Audience restricts who receives an event. The zero value means everyone.
type Audience struct {
	Only   []string `json:"only,omitempty"`
	Except []string `json:"except,omitempty"`
}

// Allows reports whether username is part of the audience.
func (a Audience) Allows(username string) bool {
	if a.Only != nil {
		return contains(a.Only, username)
	}
	return !contains(a.Except, username)
}

// IsPublic reports whether the audience is everyone.
func (a Audience) IsPublic() bool {
	return a.Only == nil && len(a.Except) == 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Event is one real-time message for a room.
type Event struct {
	Type      EventType
	RoomID    string
	Version   int64
	Timestamp time.Time
	Payload   Payload
	Audience  Audience
}

// NewEvent stamps a payload for a room at the given document version.
func NewEvent(roomID string, version int64, at time.Time, payload Payload) Event {
	return Event{
		Type:      payload.EventType(),
		RoomID:    roomID,
		Version:   version,
		Timestamp: at,
		Payload:   payload,
	}
}

// To returns a copy of the event restricted to the given audience.
func (e Event) To(a Audience) Event {
	e.Audience = a
	return e
}

type eventWire struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON encodes the event as {"type", "roomId", "version", "timestamp", "data"}.
// The audience is routing metadata and is not part of the wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %q has no payload", e.Type)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventWire{
		Type:      e.Payload.EventType(),
		RoomID:    e.RoomID,
		Version:   e.Version,
		Timestamp: e.Timestamp,
		Data:      data,
	})
}

// UnmarshalJSON decodes the payload into the concrete type named by "type".
func (e *Event) UnmarshalJSON(b []byte) error {
	var w eventWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var p Payload
	switch w.Type {
	case EventMemberJoined:
		p = &MemberJoined{}
	case EventMemberLeft:
		p = &MemberLeft{}
	case EventChat:
		p = &Chat{}
	case EventSystem:
		p = &System{}
	case EventGameStart:
		p = &GameStart{}
	case EventProgressUpdate:
		p = &ProgressUpdate{}
	case EventGameOver:
		p = &GameOver{}
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, p); err != nil {
			return fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	}
	*e = Event{
		Type:      w.Type,
		RoomID:    w.RoomID,
		Version:   w.Version,
		Timestamp: w.Timestamp,
		Payload:   deref(p),
	}
	return nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *MemberJoined:
		return *v
	case *MemberLeft:
		return *v
	case *Chat:
		return *v
	case *System:
		return *v
	case *GameStart:
		return *v
	case *ProgressUpdate:
		return *v
	case *GameOver:
		return *v
	}
	return p
}

// ClientMessage is an inbound frame from a real-time connection.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
