package database

import (
	"context"
	"sort"
	"sync"

	"wordroom/models"

	"github.com/google/uuid"
)

// MemoryAccountStore is the in-process AccountStore used by the "memory" store
// setting and by tests.
type MemoryAccountStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	order  []string
	scores []models.ScoreEntry
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{users: make(map[string]*models.User)}
}

func (s *MemoryAccountStore) FindOrCreateUser(ctx context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		return *u, nil
	}
	u := &models.User{ID: uuid.NewString(), Username: username}
	s.users[username] = u
	s.order = append(s.order, username)
	return *u, nil
}

func (s *MemoryAccountStore) FindUser(ctx context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.User{}, models.NotFound("user %s not found", username)
	}
	return *u, nil
}

func (s *MemoryAccountStore) IncrementStats(ctx context.Context, username string, wonDelta, playedDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.NotFound("user %s not found", username)
	}
	u.WordsSolved += wonDelta
	u.GamesPlayed += playedDelta
	return nil
}

func (s *MemoryAccountStore) AppendScore(ctx context.Context, entry models.ScoreEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, entry)
	return nil
}

// Scores returns a copy of the global history.
func (s *MemoryAccountStore) Scores() []models.ScoreEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScoreEntry(nil), s.scores...)
}

func (s *MemoryAccountStore) TopPlayers(ctx context.Context, limit int) ([]models.User, error) {
	s.mu.Lock()
	users := make([]models.User, 0, len(s.order))
	for _, name := range s.order {
		users = append(users, *s.users[name])
	}
	s.mu.Unlock()

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].WordsSolved > users[j].WordsSolved
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
