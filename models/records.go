package models

import "time"

// RoomRecord はroomsテーブルの行。ドキュメント本体はJSONBで、一覧用の列を別に持つ
type RoomRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Name        string    `gorm:"not null;index"`
	IsPrivate   bool      `gorm:"not null;index"`
	MemberCount int       `gorm:"not null;default:0"`
	WordCount   int       `gorm:"not null;default:0"`
	Version     int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time
	Document    []byte `gorm:"type:jsonb;not null"`
}

func (RoomRecord) TableName() string { return "rooms" }

// UserRecord はusersテーブルの行
type UserRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Username    string `gorm:"uniqueIndex;not null"`
	WordsSolved int    `gorm:"not null;default:0;index"`
	GamesPlayed int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (UserRecord) TableName() string { return "users" }

// ScoreRecord はscoresテーブル（グローバル履歴）の行
type ScoreRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Username  string    `gorm:"not null;index"`
	Word      string    `gorm:"not null"`
	Won       bool      `gorm:"not null"`
	Attempts  int       `gorm:"not null"`
	RoomID    string    `gorm:"size:64;index"`
	Timestamp time.Time `gorm:"not null"`
}

func (ScoreRecord) TableName() string { return "scores" }
