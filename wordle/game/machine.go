// Package game runs a room's game session: Idle -> Active -> Completed.
package game

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"wordroom/database"
	"wordroom/models"
	"wordroom/wordle/words"

	"go.uber.org/zap"
)

// Broadcaster delivers committed events to a room's connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, events ...models.Event)
}

// Machine performs every session transition as one atomic room update and
// publishes the resulting events after commit.
type Machine struct {
	store    database.RoomStore
	accounts database.AccountStore
	hub      Broadcaster
	rng      words.Rand
	logger   *zap.Logger
	now      func() time.Time
}

func NewMachine(store database.RoomStore, accounts database.AccountStore, hub Broadcaster, rng words.Rand, logger *zap.Logger) *Machine {
	if rng == nil {
		rng = words.NewRand(time.Now().UnixNano())
	}
	return &Machine{
		store:    store,
		accounts: accounts,
		hub:      hub,
		rng:      rng,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartOptions are the host's choices for a new session.
type StartOptions struct {
	// OwnerPlaying includes the host as a player.
	OwnerPlaying bool
	// AutoSelect > 0 picks a random word instead of the first-added one.
	AutoSelect int
}

type StartResult struct {
	Word          string   `json:"word"`
	PlayerCount   int      `json:"playerCount"`
	Players       []string `json:"players"`
	SelectionMode string   `json:"selectionMode"`
}

// StartGame moves the room from Idle or Completed to Active. Of any number of
// concurrent callers exactly one succeeds; the others get a conflict.
func (m *Machine) StartGame(ctx context.Context, roomID, acting string, opts StartOptions) (StartResult, error) {
	var (
		result StartResult
		now    = m.now()
	)
	room, err := m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		if room.Host != acting {
			return database.Skip, models.Forbidden("only the host can start a game")
		}
		if room.ActiveSession() != nil {
			return database.Skip, models.Conflict("a game is already in progress")
		}
		if len(room.Words) == 0 {
			return database.Skip, models.Validation("the word bank is empty")
		}

		var players []string
		for _, member := range room.Members {
			if member == room.Host && !opts.OwnerPlaying {
				continue
			}
			players = append(players, member)
		}
		if len(players) == 0 {
			return database.Skip, models.Validation("no players to start a game with")
		}

		word, mode := words.Pick(room, m.rng, opts.AutoSelect > 0)
		session := &models.GameSession{
			Active:        true,
			Word:          word,
			StartedAt:     now,
			StartedBy:     acting,
			SelectionMode: mode,
			Players:       make(map[string]*models.PlayerProgress, len(players)),
			PlayerOrder:   players,
		}
		for _, name := range players {
			session.Players[name] = &models.PlayerProgress{BoardData: []models.Board{}}
		}
		room.GameState = session
		room.AppendLog(models.LogEntry{Type: models.EventSystem, Content: startNotice(acting, word), Timestamp: now}, LogLimit)

		result = StartResult{Word: word, PlayerCount: len(players), Players: players, SelectionMode: mode}
		return database.Save, nil
	})
	if err != nil {
		return StartResult{}, err
	}

	start := models.GameStart{
		StartedBy:     acting,
		WordLength:    utf8.RuneCountInString(result.Word),
		Players:       result.Players,
		SelectionMode: result.SelectionMode,
	}
	withWord := start
	withWord.Word = result.Word
	m.hub.Broadcast(ctx, roomID,
		models.NewEvent(roomID, room.Version, now, withWord).To(models.Audience{Only: result.Players}),
		models.NewEvent(roomID, room.Version, now, start).To(models.Audience{Except: result.Players}),
		models.NewEvent(roomID, room.Version, now, models.System{Content: startNotice(acting, result.Word)}),
	)
	m.logger.Info("game started",
		zap.String("roomID", roomID),
		zap.String("host", acting),
		zap.Int("players", result.PlayerCount),
		zap.String("selection", result.SelectionMode))
	return result, nil
}

func startNotice(host, word string) string {
	return fmt.Sprintf("%s started a new game! The word has %d letters.", host, utf8.RuneCountInString(word))
}

// Submission is one progress report from a player.
type Submission struct {
	Board        models.Board
	AttemptIndex int
	GameOver     bool
	Won          bool
}

type ProgressResult struct {
	Attempts  int    `json:"attempts"`
	Completed bool   `json:"completed"`
	GameOver  bool   `json:"gameOver"`
	Winner    string `json:"winner,omitempty"`
}

// SubmitProgress records a player's board. A final submission (GameOver) is
// accepted once per player and session; it adds a score entry and may
// complete the session.
func (m *Machine) SubmitProgress(ctx context.Context, roomID, username string, sub Submission) (ProgressResult, error) {
	if sub.AttemptIndex < 0 {
		return ProgressResult{}, models.Validation("attempt index must not be negative")
	}

	var (
		result  ProgressResult
		outcome Outcome
		update  models.ProgressUpdate
		now     = m.now()
	)
	room, err := m.store.Update(ctx, roomID, func(room *models.Room) (database.Action, error) {
		outcome = Outcome{}
		session := room.ActiveSession()
		if session == nil {
			return database.Skip, models.Conflict("no game is in progress")
		}
		p, ok := session.Players[username]
		if !ok {
			return database.Skip, models.Forbidden("%s is not a player in this game", username)
		}
		if p.Left {
			return database.Skip, models.Conflict("%s has left this game", username)
		}
		if p.Completed {
			return database.Skip, models.Conflict("%s has already finished this game", username)
		}

		if sub.Board != nil {
			p.BoardData = append(p.BoardData, sub.Board)
		}
		p.Attempts = sub.AttemptIndex
		if sub.GameOver {
			p.Attempts = sub.AttemptIndex + 1
			p.Completed = true
			p.Won = sub.Won
			completedAt := now
			p.CompletedAt = &completedAt
			session.Finishers++
			p.CompletionSeq = session.Finishers
			outcome.Scores = append(outcome.Scores, scoreFor(room, username, p, now))
			outcome.merge(completeIfFinished(room, now))
		}

		update = models.ProgressUpdate{
			Username:  username,
			Attempts:  p.Attempts,
			Completed: p.Completed,
			Won:       p.Won,
		}
		if sub.Board != nil {
			update.Pattern = sub.Board.Pattern()
		}
		result = ProgressResult{Attempts: p.Attempts, Completed: p.Completed, GameOver: outcome.Over != nil}
		if outcome.Over != nil {
			result.Winner = outcome.Over.Winner
		}
		return database.Save, nil
	})
	if err != nil {
		return ProgressResult{}, err
	}

	events := []models.Event{models.NewEvent(roomID, room.Version, now, update)}
	events = append(events, OverEvents(roomID, room.Version, now, outcome.Over)...)
	m.hub.Broadcast(ctx, roomID, events...)

	if outcome.Over != nil {
		m.logger.Info("game completed", zap.String("roomID", roomID), zap.String("winner", outcome.Over.Winner))
	}
	if err := RecordScores(ctx, m.accounts, outcome.Scores); err != nil {
		m.logger.Error("failed to record scores", zap.String("roomID", roomID), zap.Error(err))
		return result, models.Internal(err, "record scores")
	}
	return result, nil
}

// GameState returns the room's current or most recent session. The word is
// only included for players registered in that session.
func (m *Machine) GameState(ctx context.Context, roomID, username string) (models.GameView, error) {
	room, err := m.store.Get(ctx, roomID)
	if err != nil {
		return models.GameView{}, err
	}
	return room.GameState.View(room.GameState.IsPlayer(username)), nil
}

// RecordSoloScore records a game played outside any room.
func (m *Machine) RecordSoloScore(ctx context.Context, username, word string, won bool, attempts int) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Validation("username is required")
	}
	if attempts < 0 {
		return models.Validation("attempts must not be negative")
	}
	if _, err := m.accounts.FindUser(ctx, username); err != nil {
		return err
	}
	entry := models.ScoreEntry{
		Username:  username,
		Word:      strings.ToUpper(strings.TrimSpace(word)),
		Won:       won,
		Attempts:  attempts,
		Timestamp: m.now(),
	}
	return RecordScores(ctx, m.accounts, []models.ScoreEntry{entry})
}
