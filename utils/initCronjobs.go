package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes the test rooms created before now-olderThan.
type Purger interface {
	PurgeTestRooms(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CronCleaner はテスト用ルームを定期的に削除するジョブを登録して開始します。
// 呼び出し側は終了時に Stop() を呼ぶ。
func CronCleaner(purger Purger, schedule string, maxAge time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		logger.Info("テスト用ルームを削除する処理を開始", zap.Duration("older_than", maxAge))
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := purger.PurgeTestRooms(ctx, maxAge)
		if err != nil {
			logger.Error("テスト用ルームの削除に失敗しました", zap.Error(err))
			return
		}
		logger.Info("テスト用ルーム削除完了", zap.Int64("rooms_deleted", deleted))
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
