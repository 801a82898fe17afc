package handlers

import (
	"context"
	"net/http"
	"time"

	"chatgate/database"
	"chatgate/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func Healthz(chats *database.ChatStore, rdb *redis.Client, writer *dispatch.Writer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"database": "ok", "redis": "ok"}
		if err := chats.Ping(ctx); err != nil {
			logger.Warn("ヘルスチェック: データベース", zap.Error(err))
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("ヘルスチェック: Redis", zap.Error(err))
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{"checks": checks, "writer": writer.Stats()})
	}
}
