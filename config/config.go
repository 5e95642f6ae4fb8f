package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgresql://postgres@localhost:5432/attendance"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	ShiftCacheTTL time.Duration `env:"SHIFT_CACHE_TTL" envDefault:"5m"`

	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaNotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"attendance.notifications.v1"`
	KafkaActivityTopic     string   `env:"KAFKA_ACTIVITY_TOPIC" envDefault:"attendance.activity.v1"`

	OSS OSSConfig `envPrefix:"ALI_OSS_"`

	GeocoderURL     string        `env:"GEOCODER_URL"`
	GeocoderTimeout time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"3s"`
	DefaultTimezone string        `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`

	SessionLookback  time.Duration `env:"SESSION_LOOKBACK" envDefault:"12h"`
	StaleSessionCron string        `env:"STALE_SESSION_CRON" envDefault:"@hourly"`

	CaptureRateLimit float64 `env:"CAPTURE_RATE_LIMIT" envDefault:"1"`
	CaptureRateBurst int     `env:"CAPTURE_RATE_BURST" envDefault:"5"`
}

type OSSConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	Prefix    string `env:"PREFIX" envDefault:"attendance"`
}

func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
