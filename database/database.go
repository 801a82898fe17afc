package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"chatgate/models"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// 元の環境変数名も引き続き受け付ける
var legacyEnv = map[string]string{
	"database.url":          "DATABASE_URL",
	"redis.addr":            "REDIS_ADDR",
	"redis.username":        "REDIS_USERNAME",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"auth.jwt_secret":       "JWT_SECRET_KEY",
	"gemini.api_key":        "GEMINI_API_KEY",
	"stripe.secret_key":     "STRIPE_SECRET_KEY",
	"stripe.webhook_secret": "STRIPE_WEBHOOK_SECRET",
	"stripe.price_id":       "STRIPE_PRICE_ID",
	"stripe.host_url":       "HOST_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "chatgate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 60*time.Minute)
	v.SetDefault("auth.otp_ttl", 5*time.Minute)
	v.SetDefault("quota.daily_limit", 5)
	v.SetDefault("quota.refund_on_failure", false)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.timeout", 30*time.Second)
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.price_id", "")
	v.SetDefault("stripe.host_url", "http://localhost:8080")
	v.SetDefault("stripe.allow_unsigned", false)
	v.SetDefault("persistence.queue_size", 256)
	v.SetDefault("persistence.enqueue_timeout", 2*time.Second)
	v.SetDefault("persistence.write_timeout", 10*time.Second)
	v.SetDefault("retention.message_days", 0)
	v.SetDefault("telemetry.service_name", "chatgate")
	v.SetDefault("telemetry.exporter", "")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// LoadConfig は設定ファイル(任意)と環境変数から設定を読み込みます。
// 環境変数は CHATGATE_ プレフィックス付き(例: CHATGATE_QUOTA_DAILY_LIMIT)が優先されます。
func LoadConfig(filename string, logger *zap.Logger) (models.Config, error) {
	var config models.Config

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "CHATGATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return config, err
		}
	}

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return config, fmt.Errorf("read config %s: %w", filename, err)
			}
			logger.Warn("Config file not found, using env and defaults", zap.String("file", filename))
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func postgresDSN(config models.DatabaseConfig) string {
	if config.URL != "" {
		return config.URL
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.Host, config.User, config.Name, config.Password, config.SSLMode)
}

// OpenSQLite はローカル開発・テスト用のSQLite接続を開きます。
// インメモリDBを全ゴルーチンで共有するため接続は1本に絞る
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// InitPostgreSQL はPostgreSQLへ接続します。URLが "sqlite:" で始まる場合はSQLiteを使います。
func InitPostgreSQL(config models.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if strings.HasPrefix(config.URL, "sqlite:") {
		logger.Warn("Using SQLite database", zap.String("url", config.URL))
		return OpenSQLite(strings.TrimPrefix(config.URL, "sqlite:"))
	}
	dsn := postgresDSN(config)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Warn),
		})
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			return gormDB, nil
		}
		logger.Error("Retrying database connection", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("connect postgres: %w", err)
}

// AutoMigrate はモデル定義に合わせてテーブルを作成・更新します。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.AllModels()...)
}

func InitRedis(ctx context.Context, config models.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.Addr))
	return rdb, nil
}
