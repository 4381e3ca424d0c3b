package models

import "time"

// ScoreEntry is an immutable record of one finished (or abandoned) game.
type ScoreEntry struct {
	Username  string    `json:"username"`
	Word      string    `json:"word"`
	Won       bool      `json:"won"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"roomId,omitempty"`
}

// User はアカウントストアのユーザー
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	WordsSolved int    `json:"wordsSolved"`
	GamesPlayed int    `json:"gamesPlayed"`
}

// PlayerStats is one row of a room leaderboard.
type PlayerStats struct {
	Username        string  `json:"username"`
	GamesPlayed     int     `json:"gamesPlayed"`
	WordsSolved     int     `json:"wordsSolved"`
	AverageAttempts float64 `json:"averageAttempts"`
}

// GlobalStats is one row of the global leaderboard.
type GlobalStats struct {
	Username    string `json:"username"`
	WordsSolved int    `json:"wordsSolved"`
	GamesPlayed int    `json:"gamesPlayed"`
}
