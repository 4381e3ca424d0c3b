package game

import (
	"context"
	"fmt"
	"time"

	"wordroom/database"
	"wordroom/models"
)

// LogLimit caps the chat/event log kept in the room document.
const LogLimit = 200

// Outcome is what a mutation leaves to do once the room has been committed.
type Outcome struct {
	// Scores go to the global history and account stats.
	Scores []models.ScoreEntry
	// Over is set when the mutation completed the session.
	Over *models.GameOver
}

func (o *Outcome) merge(other Outcome) {
	o.Scores = append(o.Scores, other.Scores...)
	if other.Over != nil {
		o.Over = other.Over
	}
}

func scoreFor(room *models.Room, username string, p *models.PlayerProgress, now time.Time) models.ScoreEntry {
	entry := models.ScoreEntry{
		Username:  username,
		Word:      room.GameState.Word,
		Won:       p.Won,
		Attempts:  p.Attempts,
		Timestamp: now,
		RoomID:    room.ID,
	}
	room.Scores = append(room.Scores, entry)
	return entry
}

// Leave marks username as having left the active session. A player who had not
// completed gets one abandoned (lost) score entry. If that leaves every player
// finished, the session completes in the same mutation.
func Leave(room *models.Room, username string, now time.Time) Outcome {
	var out Outcome
	session := room.ActiveSession()
	if session == nil {
		return out
	}
	p, ok := session.Players[username]
	if !ok || p.Left {
		return out
	}
	p.Left = true
	if !p.Completed {
		out.Scores = append(out.Scores, scoreFor(room, username, p, now))
	}
	out.merge(completeIfFinished(room, now))
	return out
}

// completeIfFinished moves an active session whose players have all finished
// to Completed. Only the mutation that observes Active does so, so endedAt is
// stamped exactly once.
func completeIfFinished(room *models.Room, now time.Time) Outcome {
	session := room.ActiveSession()
	if session == nil || !session.AllFinished() {
		return Outcome{}
	}
	ended := now
	session.Active = false
	session.EndedAt = &ended
	session.Winner = session.DetermineWinner()

	over := &models.GameOver{
		Winner: session.Winner,
		Draw:   session.Winner == "",
		Word:   session.Word,
	}
	for _, name := range session.PlayerOrder {
		p := session.Players[name]
		over.Results = append(over.Results, models.PlayerResult{
			Username: name,
			Won:      p.Won,
			Attempts: p.Attempts,
			Left:     p.Left,
		})
	}
	room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: overNotice(over), Timestamp: now}, LogLimit)
	return Outcome{Over: over}
}

func overNotice(over *models.GameOver) string {
	if over.Draw {
		return fmt.Sprintf("Game over! Nobody guessed the word %s.", over.Word)
	}
	for _, r := range over.Results {
		if r.Username == over.Winner {
			return fmt.Sprintf("Game over! %s won in %d attempts. The word was %s.", over.Winner, r.Attempts, over.Word)
		}
	}
	return fmt.Sprintf("Game over! %s won. The word was %s.", over.Winner, over.Word)
}

// OverEvents builds the game_over event and its system notice.
func OverEvents(roomID string, version int64, now time.Time, over *models.GameOver) []models.Event {
	if over == nil {
		return nil
	}
	return []models.Event{
		models.NewEvent(roomID, version, now, *over),
		models.NewEvent(roomID, version, now, models.System{Content: overNotice(over)}),
	}
}

// RecordScores appends scores to the global history and bumps account stats.
// Accounts are created on demand so a player who never logged in still counts.
func RecordScores(ctx context.Context, accounts database.AccountStore, scores []models.ScoreEntry) error {
	for _, s := range scores {
		if err := accounts.AppendScore(ctx, s); err != nil {
			return fmt.Errorf("append score for %s: %w", s.Username, err)
		}
		if _, err := accounts.FindOrCreateUser(ctx, s.Username); err != nil {
			return fmt.Errorf("load account %s: %w", s.Username, err)
		}
		won := 0
		if s.Won {
			won = 1
		}
		if err := accounts.IncrementStats(ctx, s.Username, won, 1); err != nil {
			return fmt.Errorf("update stats for %s: %w", s.Username, err)
		}
	}
	return nil
}
