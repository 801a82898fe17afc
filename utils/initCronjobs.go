package utils

import (
	"context"
	"time"

	"chatgate/dispatch"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type MessagePruner interface {
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type WriterStats interface {
	Stats() dispatch.Stats
}

// CronCleaner は定期ジョブを登録して開始します。返り値のcronは終了時にStopする
func CronCleaner(pruner MessagePruner, retentionDays int, writer WriterStats, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(logger)))))

	// 保持期間を過ぎたメッセージを削除するジョブ（毎日）
	if retentionDays > 0 {
		if _, err := c.AddFunc("@daily", func() {
			PruneMessages(pruner, retentionDays, logger)
		}); err != nil {
			return nil, err
		}
	}

	// 書き込みキューの状態を記録
	if _, err := c.AddFunc("@every 1m", func() {
		stats := writer.Stats()
		logger.Info("message writer stats", zap.Any("stats", stats))
		if stats.Failed > 0 || stats.Dropped > 0 {
			logger.Warn("message writer has lost exchanges",
				zap.Int64("failed", stats.Failed),
				zap.Int64("dropped", stats.Dropped),
			)
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}

// PruneMessages はretentionDaysより古いメッセージを削除します。
func PruneMessages(pruner MessagePruner, retentionDays int, logger *zap.Logger) int64 {
	logger.Info("古いメッセージを削除する処理を開始", zap.Int("retention_days", retentionDays))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := pruner.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		logger.Error("古いメッセージの削除に失敗しました", zap.Error(err))
		return 0
	}
	logger.Info("古いメッセージの削除完了", zap.Int64("messages_deleted", deleted))
	return deleted
}
