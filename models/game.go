package models

import "time"

// 単語の選び方
const (
	SelectionFirstAdded = "first_added"
	SelectionRandom     = "random"
)

// Tile is one cell of a guess board.
type Tile struct {
	Letter string `json:"letter"`
	Status string `json:"status"` // "correct", "present", "absent", "empty"
}

// Board is a player's guess grid, one row per attempt.
type Board [][]Tile

// Pattern returns the board without letters.
func (b Board) Pattern() [][]string {
	out := make([][]string, len(b))
	for i, row := range b {
		out[i] = make([]string, len(row))
		for j, t := range row {
			out[i][j] = t.Status
		}
	}
	return out
}

// PlayerProgress は1人のプレイヤーのセッション内の進捗
type PlayerProgress struct {
	Completed     bool       `json:"completed"`
	Won           bool       `json:"won"`
	Attempts      int        `json:"attempts"`
	BoardData     []Board    `json:"boardData"`
	Left          bool       `json:"left"`
	CompletionSeq int        `json:"completionSeq,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Finished reports whether the player no longer blocks completion.
func (p *PlayerProgress) Finished() bool {
	return p.Completed || p.Left
}

// GameSession is embedded in the room document. It stays there after it ends
// until the next StartGame overwrites it.
type GameSession struct {
	Active        bool                       `json:"active"`
	Word          string                     `json:"word"`
	StartedAt     time.Time                  `json:"startedAt"`
	EndedAt       *time.Time                 `json:"endedAt"`
	StartedBy     string                     `json:"startedBy"`
	SelectionMode string                     `json:"selectionMode"`
	Players       map[string]*PlayerProgress `json:"players"`
	PlayerOrder   []string                   `json:"playerOrder"`
	Finishers     int                        `json:"finishers"`
	Winner        string                     `json:"winner,omitempty"`
}

// IsPlayer reports whether username was registered when the session started.
func (s *GameSession) IsPlayer(username string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Players[username]
	return ok
}

// AllFinished reports whether every registered player completed or left.
func (s *GameSession) AllFinished() bool {
	for _, p := range s.Players {
		if !p.Finished() {
			return false
		}
	}
	return true
}

// DetermineWinner picks the completed-and-won player with the fewest attempts;
// ties go to whoever finished first. Empty means nobody won.
func (s *GameSession) DetermineWinner() string {
	winner := ""
	var best *PlayerProgress
	for _, name := range s.PlayerOrder {
		p := s.Players[name]
		if p == nil || !p.Completed || !p.Won {
			continue
		}
		if best == nil || p.Attempts < best.Attempts ||
			(p.Attempts == best.Attempts && p.CompletionSeq < best.CompletionSeq) {
			best = p
			winner = name
		}
	}
	return winner
}

// PlayerView は公開用の進捗
type PlayerView struct {
	Username  string     `json:"username"`
	Completed bool       `json:"completed"`
	Won       bool       `json:"won"`
	Attempts  int        `json:"attempts"`
	Left      bool       `json:"left"`
	Pattern   [][]string `json:"pattern,omitempty"`
	BoardData []Board    `json:"boardData,omitempty"`
}

// GameView is the session as returned to a caller.
type GameView struct {
	Active        bool         `json:"active"`
	Word          string       `json:"word,omitempty"`
	WordLength    int          `json:"wordLength,omitempty"`
	StartedAt     *time.Time   `json:"startedAt,omitempty"`
	EndedAt       *time.Time   `json:"endedAt,omitempty"`
	SelectionMode string       `json:"selectionMode,omitempty"`
	Winner        string       `json:"winner,omitempty"`
	Players       []PlayerView `json:"players,omitempty"`
}

// View renders the session. revealWord controls whether the secret word and
// letter boards are included. A nil session renders as inactive with nothing else.
func (s *GameSession) View(revealWord bool) GameView {
	if s == nil {
		return GameView{}
	}
	started := s.StartedAt
	v := GameView{
		Active:        s.Active,
		WordLength:    len([]rune(s.Word)),
		StartedAt:     &started,
		EndedAt:       s.EndedAt,
		SelectionMode: s.SelectionMode,
		Winner:        s.Winner,
	}
	if revealWord {
		v.Word = s.Word
	}
	for _, name := range s.PlayerOrder {
		p := s.Players[name]
		if p == nil {
			continue
		}
		pv := PlayerView{
			Username:  name,
			Completed: p.Completed,
			Won:       p.Won,
			Attempts:  p.Attempts,
			Left:      p.Left,
		}
		if len(p.BoardData) > 0 {
			last := p.BoardData[len(p.BoardData)-1]
			pv.Pattern = last.Pattern()
			if revealWord {
				pv.BoardData = p.BoardData
			}
		}
		v.Players = append(v.Players, pv)
	}
	return v
}
