package migrations

import (
	"fmt"

	"wordroom/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate はrooms/users/scoresテーブルを作成・更新します。
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.RoomRecord{}, &models.UserRecord{}, &models.ScoreRecord{}); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	logger.Info("rooms, users and scores tables migrated")
	return nil
}
