// Package words manages a room's host-curated word bank.
package words

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"wordroom/database"
	"wordroom/models"

	"go.uber.org/zap"
)

// MinLength is the shortest word a bank accepts.
const MinLength = 3

// Rand is the source used for random word selection.
type Rand interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a Rand that is safe for concurrent use.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// Canonicalize trims and uppercases raw. Words containing whitespace or shorter
// than MinLength are rejected.
func Canonicalize(raw string) (string, error) {
	word := strings.ToUpper(strings.TrimSpace(raw))
	if strings.IndexFunc(word, unicode.IsSpace) >= 0 {
		return "", models.Validation("word must be a single word")
	}
	if utf8.RuneCountInString(word) < MinLength {
		return "", models.Validation("word must be at least %d letters", MinLength)
	}
	return word, nil
}

// Pick selects the session word from the room's bank: uniformly at random when
// random is set, otherwise the first-added word. The bank must not be empty.
func Pick(room *models.Room, rng Rand, random bool) (word, mode string) {
	if random {
		return room.Words[rng.Intn(len(room.Words))].Word, models.SelectionRandom
	}
	return room.Words[0].Word, models.SelectionFirstAdded
}

// Bank applies word bank changes to rooms in the store.
type Bank struct {
	store  database.RoomStore
	rng    Rand
	logger *zap.Logger
	now    func() time.Time
}

func NewBank(store database.RoomStore, rng Rand, logger *zap.Logger) *Bank {
	if rng == nil {
		rng = NewRand(time.Now().UnixNano())
	}
	return &Bank{store: store, rng: rng, logger: logger, now: time.Now}
}

// Rand exposes the bank's random source so game starts draw from the same one.
func (b *Bank) Rand() Rand {
	return b.rng
}

func requireHost(room *models.Room, acting, what string) error {
	if room.Host != acting {
		return models.Forbidden("only the host can %s", what)
	}
	return nil
}

// AddWord appends a canonicalized word to the bank. Host only.
func (b *Bank) AddWord(ctx context.Context, roomID, acting, raw string) (models.WordEntry, error) {
	word, err := Canonicalize(raw)
	if err != nil {
		return models.WordEntry{}, err
	}

	var entry models.WordEntry
	_, err = b.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		if err := requireHost(room, acting, "add words"); err != nil {
			return database.Skip, err
		}
		if room.WordIndex(word) >= 0 {
			return database.Skip, models.Validation("word %s is already in the bank", word)
		}
		entry = models.WordEntry{Word: word, AddedBy: acting, AddedAt: b.now().UTC()}
		room.Words = append(room.Words, entry)
		return database.Save, nil
	})
	if err != nil {
		return models.WordEntry{}, err
	}
	b.logger.Debug("word added", zap.String("roomID", roomID), zap.String("by", acting))
	return entry, nil
}

// RemoveWord deletes a case-insensitive match. Removing an absent word is not
// an error; removed reports whether anything changed.
func (b *Bank) RemoveWord(ctx context.Context, roomID, acting, word string) (removed bool, err error) {
	target := strings.TrimSpace(word)
	_, err = b.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		if err := requireHost(room, acting, "remove words"); err != nil {
			return database.Skip, err
		}
		i := room.WordIndex(target)
		if i < 0 {
			return database.Skip, nil
		}
		room.Words = append(room.Words[:i], room.Words[i+1:]...)
		removed = true
		return database.Save, nil
	})
	return removed, err
}

// RandomWord draws one word uniformly from the bank.
func (b *Bank) RandomWord(ctx context.Context, roomID string) (string, error) {
	room, err := b.store.Get(ctx, roomID)
	if err != nil {
		return "", err
	}
	if len(room.Words) == 0 {
		return "", models.NotFound("room %s has no words", roomID)
	}
	word, _ := Pick(room, b.rng, true)
	return word, nil
}
