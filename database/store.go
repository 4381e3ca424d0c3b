package database

import (
	"context"
	"time"

	"wordroom/models"
)

// Action tells the store what to do with the document after a mutation.
type Action int

const (
	// Save writes the mutated document and bumps its version.
	Save Action = iota
	// Skip leaves the stored document untouched.
	Skip
	// Delete removes the document in the same atomic step.
	Delete
)

// Mutation edits a private copy of the room. Returning an error aborts the
// update; the error is returned from Update unchanged.
type Mutation func(room *models.Room) (Action, error)

// RoomQuery describes a room listing.
type RoomQuery struct {
	Visibility models.Visibility
	SortBy     models.SortField
	Descending bool
	Limit      int
}

// RoomFilter selects rooms for bulk deletion.
type RoomFilter struct {
	// NamePrefix matches case-insensitively.
	NamePrefix    string
	CreatedBefore time.Time
}

// RoomStore is the durable room document store. Update is the only way to
// change an existing room and is atomic per room id.
type RoomStore interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, id string) (*models.Room, error)
	// Update returns the committed document, or nil when the mutation deleted it.
	Update(ctx context.Context, id string, mutate Mutation) (*models.Room, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q RoomQuery) ([]models.Room, error)
	DeleteWhere(ctx context.Context, f RoomFilter) (int64, error)
}

// AccountStore keeps users, their aggregate stats and the global score history.
type AccountStore interface {
	FindOrCreateUser(ctx context.Context, username string) (models.User, error)
	FindUser(ctx context.Context, username string) (models.User, error)
	IncrementStats(ctx context.Context, username string, wonDelta, playedDelta int) error
	AppendScore(ctx context.Context, entry models.ScoreEntry) error
	TopPlayers(ctx context.Context, limit int) ([]models.User, error)
}

func roomNotFound(id string) error {
	return models.NotFound("room %s not found", id)
}
