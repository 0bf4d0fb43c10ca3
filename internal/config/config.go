package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultJWTSecret = "change-me-hot-wheels-elite"

// Config holds all configuration for the marketplace binaries.
type Config struct {
	ServiceName            string        `mapstructure:"SERVICE_NAME"`
	HTTPPort               string        `mapstructure:"HTTP_PORT"`
	MetricsPort            string        `mapstructure:"METRICS_PORT"`
	PublicBaseURL          string        `mapstructure:"PUBLIC_BASE_URL"`
	StoreBackend           string        `mapstructure:"STORE_BACKEND"`
	StorePath              string        `mapstructure:"STORE_PATH"`
	RedisAddress           string        `mapstructure:"REDIS_ADDRESS"`
	RedisPassword          string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                int           `mapstructure:"REDIS_DB"`
	MongoURI               string        `mapstructure:"MONGO_URI"`
	MongoDatabase          string        `mapstructure:"MONGO_DATABASE"`
	PhotoBackend           string        `mapstructure:"PHOTO_BACKEND"`
	MinIOEndpoint          string        `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey         string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey         string        `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket            string        `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL            bool          `mapstructure:"MINIO_USE_SSL"`
	NATSURL                string        `mapstructure:"NATS_URL"`
	JWTSecret              string        `mapstructure:"JWT_SECRET"`
	JWTTTL                 time.Duration `mapstructure:"JWT_TTL"`
	TelegramBotToken       string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramAuthMaxAge     time.Duration `mapstructure:"TELEGRAM_AUTH_MAX_AGE"`
	SMTPHost               string        `mapstructure:"SMTP_HOST"`
	SMTPPort               int           `mapstructure:"SMTP_PORT"`
	SMTPUser               string        `mapstructure:"SMTP_USER"`
	SMTPPassword           string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom               string        `mapstructure:"SMTP_FROM"`
	ModeratorEmail         string        `mapstructure:"MODERATOR_EMAIL"`
	OTExporterOTLPEndpoint string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio       float64       `mapstructure:"TRACE_SAMPLE_RATIO"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	LogFormat              string        `mapstructure:"LOG_FORMAT"`
}

var storeBackends = map[string]bool{"memory": true, "file": true, "sqlite": true, "redis": true, "mongo": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "hot-wheels-elite")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("METRICS_PORT", "9095")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080/")
	v.SetDefault("STORE_BACKEND", "file")
	v.SetDefault("STORE_PATH", "data/hotwheels.json")
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "hot_wheels_elite")
	v.SetDefault("PHOTO_BACKEND", "store")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "product-photos")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", "720h")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_AUTH_MAX_AGE", "24h")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("MODERATOR_EMAIL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("TRACE_SAMPLE_RATIO", 1.0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// LoadConfig reads an optional .env file, then the environment, over defaults.
func LoadConfig(appLogger *logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		appLogger.Debug("no .env file loaded, relying on environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		appLogger.Error("failed to unmarshal configuration", zap.Error(err))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == defaultJWTSecret {
		appLogger.Warn("JWT_SECRET is set to its default insecure value")
	}
	if cfg.TelegramBotToken == "" {
		appLogger.Warn("TELEGRAM_BOT_TOKEN is empty, telegram sign-in will be rejected")
	}

	appLogger.Debug("configuration loaded",
		zap.String("service_name", cfg.ServiceName),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("photo_backend", cfg.PhotoBackend),
		zap.Bool("nats_enabled", cfg.NATSURL != ""),
		zap.Bool("mailer_enabled", cfg.MailerEnabled()),
		zap.String("otel_endpoint", cfg.OTExporterOTLPEndpoint),
	)
	return &cfg, nil
}

// Validate rejects configurations the binaries cannot start with.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	c.PhotoBackend = strings.ToLower(c.PhotoBackend)
	if !storeBackends[c.StoreBackend] {
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.PhotoBackend != "store" && c.PhotoBackend != "minio" {
		return fmt.Errorf("unknown PHOTO_BACKEND %q", c.PhotoBackend)
	}
	if (c.StoreBackend == "file" || c.StoreBackend == "sqlite") && c.StorePath == "" {
		return errors.New("STORE_PATH is required for file and sqlite backends")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO %v is outside [0, 1]", c.TraceSampleRatio)
	}
	return nil
}

// MailerEnabled reports whether moderation mail can be sent.
func (c *Config) MailerEnabled() bool {
	return c.SMTPHost != "" && c.ModeratorEmail != ""
}
