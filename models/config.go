package models

import (
	"errors"
	"time"
)

// Config はプロセス起動時に一度だけ構築され、各コンポーネントのコンストラクタへ渡されます。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Addr         string   `mapstructure:"addr"`
	Mode         string   `mapstructure:"mode"` // "production" または "development"
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig はPostgreSQL接続の設定情報を保持します。URLが優先されます。
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	OTPTTL    time.Duration `mapstructure:"otp_ttl"`
}

type QuotaConfig struct {
	DailyLimit int64 `mapstructure:"daily_limit"`
	// trueの場合、生成に失敗したリクエストのカウントを戻す
	RefundOnFailure bool `mapstructure:"refund_on_failure"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceID       string `mapstructure:"price_id"`
	HostURL       string `mapstructure:"host_url"`
	// AllowUnsigned はwebhook_secret未設定時に署名なしイベントを受け付けます。開発専用
	AllowUnsigned bool `mapstructure:"allow_unsigned"`
}

type PersistenceConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type RetentionConfig struct {
	MessageDays int `mapstructure:"message_days"` // 0で無効
}

type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"` // "", "stdout", "otlp"
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Validate は起動に必須な設定が揃っているかを確認します。
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" && c.Database.Host == "" {
		errs = append(errs, errors.New("database url or host is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis addr is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth jwt_secret is required"))
	}
	if c.Quota.DailyLimit <= 0 {
		errs = append(errs, errors.New("quota daily_limit must be positive"))
	}
	if c.Persistence.QueueSize <= 0 {
		errs = append(errs, errors.New("persistence queue_size must be positive"))
	}
	if c.Server.Mode == "production" {
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("stripe webhook_secret is required in production"))
		}
		if c.Stripe.AllowUnsigned {
			errs = append(errs, errors.New("stripe allow_unsigned cannot be enabled in production"))
		}
	}
	return errors.Join(errs...)
}
