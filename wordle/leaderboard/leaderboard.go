// Package leaderboard ranks players from score history and account stats.
package leaderboard

import (
	"context"
	"math"
	"sort"

	"wordroom/database"
	"wordroom/models"
)

// GlobalSize is the number of players on the global leaderboard.
const GlobalSize = 10

type Aggregator struct {
	store    database.RoomStore
	accounts database.AccountStore
}

func NewAggregator(store database.RoomStore, accounts database.AccountStore) *Aggregator {
	return &Aggregator{store: store, accounts: accounts}
}

// Aggregate groups scores by username. AverageAttempts is the mean over won
// games only, rounded to one decimal. Rows are ordered by wordsSolved desc,
// then averageAttempts asc; ties keep first-seen order.
func Aggregate(scores []models.ScoreEntry) []models.PlayerStats {
	type acc struct {
		stats    models.PlayerStats
		attempts int
	}
	var order []string
	byUser := make(map[string]*acc)
	for _, s := range scores {
		a, ok := byUser[s.Username]
		if !ok {
			a = &acc{stats: models.PlayerStats{Username: s.Username}}
			byUser[s.Username] = a
			order = append(order, s.Username)
		}
		a.stats.GamesPlayed++
		if s.Won {
			a.stats.WordsSolved++
			a.attempts += s.Attempts
		}
	}

	out := make([]models.PlayerStats, 0, len(order))
	for _, name := range order {
		a := byUser[name]
		if a.stats.WordsSolved > 0 {
			a.stats.AverageAttempts = math.Round(float64(a.attempts)/float64(a.stats.WordsSolved)*10) / 10
		}
		out = append(out, a.stats)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WordsSolved != out[j].WordsSolved {
			return out[i].WordsSolved > out[j].WordsSolved
		}
		return out[i].AverageAttempts < out[j].AverageAttempts
	})
	return out
}

func (a *Aggregator) RoomLeaderboard(ctx context.Context, roomID string) ([]models.PlayerStats, error) {
	room, err := a.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return Aggregate(room.Scores), nil
}

func (a *Aggregator) GlobalLeaderboard(ctx context.Context) ([]models.GlobalStats, error) {
	users, err := a.accounts.TopPlayers(ctx, GlobalSize)
	if err != nil {
		return nil, err
	}
	out := make([]models.GlobalStats, 0, len(users))
	for _, u := range users {
		out = append(out, models.GlobalStats{
			Username:    u.Username,
			WordsSolved: u.WordsSolved,
			GamesPlayed: u.GamesPlayed,
		})
	}
	return out, nil
}
