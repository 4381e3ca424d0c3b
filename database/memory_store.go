package database

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"wordroom/models"
)

type memoryEntry struct {
	mu      sync.Mutex
	doc     []byte
	deleted bool
}

// MemoryRoomStore keeps encoded room documents in process memory. Each room has
// its own lock; the map lock is never held while waiting on a room lock.
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryEntry
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string]*memoryEntry)}
}

func (s *MemoryRoomStore) Create(ctx context.Context, room *models.Room) error {
	if room.Version == 0 {
		room.Version = 1
	}
	doc, err := json.Marshal(room)
	if err != nil {
		return models.Internal(err, "encode room")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return models.Conflict("room %s already exists", room.ID)
	}
	s.rooms[room.ID] = &memoryEntry{doc: doc}
	return nil
}

func (s *MemoryRoomStore) entry(id string) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[id]
}

func decodeRoom(doc []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, models.Internal(err, "decode room")
	}
	return &room, nil
}

func (s *MemoryRoomStore) Get(ctx context.Context, id string) (*models.Room, error) {
	e := s.entry(id)
	if e == nil {
		return nil, roomNotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, roomNotFound(id)
	}
	return decodeRoom(e.doc)
}

func (s *MemoryRoomStore) Update(ctx context.Context, id string, mutate Mutation) (*models.Room, error) {
	e := s.entry(id)
	if e == nil {
		return nil, roomNotFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, roomNotFound(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	room, err := decodeRoom(e.doc)
	if err != nil {
		return nil, err
	}
	action, err := mutate(room)
	if err != nil {
		return nil, err
	}

	switch action {
	case Skip:
		return decodeRoom(e.doc)
	case Delete:
		e.deleted = true
		e.doc = nil
		s.mu.Lock()
		delete(s.rooms, id)
		s.mu.Unlock()
		return nil, nil
	}

	room.Version++
	doc, err := json.Marshal(room)
	if err != nil {
		return nil, models.Internal(err, "encode room")
	}
	e.doc = doc
	return decodeRoom(doc)
}

func (s *MemoryRoomStore) Delete(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(*models.Room) (Action, error) { return Delete, nil })
	return err
}

func (s *MemoryRoomStore) snapshot() map[string]*memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*memoryEntry, len(s.rooms))
	for id, e := range s.rooms {
		out[id] = e
	}
	return out
}

func (s *MemoryRoomStore) List(ctx context.Context, q RoomQuery) ([]models.Room, error) {
	var rooms []models.Room
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}
		room, err := decodeRoom(e.doc)
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		switch q.Visibility {
		case models.VisibilityPublic:
			if room.IsPrivate {
				continue
			}
		case models.VisibilityPrivate:
			if !room.IsPrivate {
				continue
			}
		}
		rooms = append(rooms, *room)
	}

	// map順は不定なので、まず作成順に並べてから指定列で安定ソート
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	less := roomLess(q.SortBy)
	sort.SliceStable(rooms, func(i, j int) bool {
		if q.Descending {
			return less(&rooms[j], &rooms[i])
		}
		return less(&rooms[i], &rooms[j])
	})

	if q.Limit > 0 && len(rooms) > q.Limit {
		rooms = rooms[:q.Limit]
	}
	return rooms, nil
}

func roomLess(field models.SortField) func(a, b *models.Room) bool {
	switch field {
	case models.SortByName:
		return func(a, b *models.Room) bool { return a.Name < b.Name }
	case models.SortByMemberCount:
		return func(a, b *models.Room) bool { return len(a.Members) < len(b.Members) }
	case models.SortByWordCount:
		return func(a, b *models.Room) bool { return len(a.Words) < len(b.Words) }
	default:
		return func(a, b *models.Room) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func (s *MemoryRoomStore) DeleteWhere(ctx context.Context, f RoomFilter) (int64, error) {
	var deleted int64
	prefix := strings.ToLower(f.NamePrefix)
	for id, e := range s.snapshot() {
		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}
		room, err := decodeRoom(e.doc)
		if err != nil {
			e.mu.Unlock()
			return deleted, err
		}
		if !matchesFilter(room, prefix, f.CreatedBefore) {
			e.mu.Unlock()
			continue
		}
		e.deleted = true
		e.doc = nil
		e.mu.Unlock()

		s.mu.Lock()
		delete(s.rooms, id)
		s.mu.Unlock()
		deleted++
	}
	return deleted, nil
}

func matchesFilter(room *models.Room, lowerPrefix string, createdBefore time.Time) bool {
	if lowerPrefix != "" && !strings.HasPrefix(strings.ToLower(room.Name), lowerPrefix) {
		return false
	}
	if !createdBefore.IsZero() && !room.CreatedAt.Before(createdBefore) {
		return false
	}
	return true
}
