package database

import (
	"context"
	"errors"

	"wordroom/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountStore keeps users and the global score history in Postgres.
type GormAccountStore struct {
	db *gorm.DB
}

func NewGormAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

func userFromRecord(rec models.UserRecord) models.User {
	return models.User{
		ID:          rec.ID,
		Username:    rec.Username,
		WordsSolved: rec.WordsSolved,
		GamesPlayed: rec.GamesPlayed,
	}
}

func (s *GormAccountStore) FindOrCreateUser(ctx context.Context, username string) (models.User, error) {
	user, err := s.FindUser(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}

	rec := models.UserRecord{ID: uuid.NewString(), Username: username}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		// 同時ログインで先に作られていた場合は作成済みの行を返す
		if isUniqueViolation(err) {
			return s.FindUser(ctx, username)
		}
		return models.User{}, internalErr(err, "create user")
	}
	return userFromRecord(rec), nil
}

func (s *GormAccountStore) FindUser(ctx context.Context, username string) (models.User, error) {
	var rec models.UserRecord
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, models.NotFound("user %s not found", username)
		}
		return models.User{}, internalErr(err, "load user")
	}
	return userFromRecord(rec), nil
}

func (s *GormAccountStore) IncrementStats(ctx context.Context, username string, wonDelta, playedDelta int) error {
	res := s.db.WithContext(ctx).Model(&models.UserRecord{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"words_solved": gorm.Expr("words_solved + ?", wonDelta),
			"games_played": gorm.Expr("games_played + ?", playedDelta),
		})
	if res.Error != nil {
		return internalErr(res.Error, "update user stats")
	}
	if res.RowsAffected == 0 {
		return models.NotFound("user %s not found", username)
	}
	return nil
}

func (s *GormAccountStore) AppendScore(ctx context.Context, entry models.ScoreEntry) error {
	rec := models.ScoreRecord{
		Username:  entry.Username,
		Word:      entry.Word,
		Won:       entry.Won,
		Attempts:  entry.Attempts,
		RoomID:    entry.RoomID,
		Timestamp: entry.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return internalErr(err, "append score")
	}
	return nil
}

func (s *GormAccountStore) TopPlayers(ctx context.Context, limit int) ([]models.User, error) {
	query := s.db.WithContext(ctx).Order("words_solved DESC").Order("created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var recs []models.UserRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, internalErr(err, "list top players")
	}
	users := make([]models.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, userFromRecord(rec))
	}
	return users, nil
}
