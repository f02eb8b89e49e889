package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"omitempty,oneof=json text"`

	// Worker Configuration
	WorkerID       string        `mapstructure:"WORKER_ID"`
	MediaWorkers   int           `mapstructure:"MEDIA_WORKERS" validate:"gte=1"`
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	StaleLockAfter time.Duration `mapstructure:"STALE_LOCK_AFTER"`
	TempDir        string        `mapstructure:"TEMP_DIR"`

	// Media tooling
	MaxDownloadBytes int64         `mapstructure:"MAX_DOWNLOAD_BYTES" validate:"gt=0"`
	FFmpegPath       string        `mapstructure:"FFMPEG_PATH"`
	FFprobePath      string        `mapstructure:"FFPROBE_PATH"`
	ChromePath       string        `mapstructure:"CHROME_PATH"`
	ScrapeSettle     time.Duration `mapstructure:"SCRAPE_SETTLE"`
	ScrapeNavTimeout time.Duration `mapstructure:"SCRAPE_NAV_TIMEOUT"`

	Storage StorageConfig `mapstructure:",squash" validate:"-"`
	AI      AIConfig      `mapstructure:",squash" validate:"-"`
}

// StorageConfig holds the object store (Cloudflare R2 / S3) settings.
type StorageConfig struct {
	Endpoint        string `mapstructure:"R2_ENDPOINT" validate:"required_without=AccountID"`
	AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID" validate:"required"`
	SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY" validate:"required"`
	Bucket          string `mapstructure:"R2_BUCKET" validate:"required"`
	Region          string `mapstructure:"R2_REGION"`
}

// AIConfig holds the speech-to-text and text-generation service settings.
type AIConfig struct {
	STTAPIKey  string `mapstructure:"STT_API_KEY" validate:"required"`
	STTBaseURL string `mapstructure:"STT_BASE_URL" validate:"required,url"`
	STTModel   string `mapstructure:"STT_MODEL" validate:"required"`

	LLMAPIKey  string `mapstructure:"LLM_API_KEY" validate:"required"`
	LLMBaseURL string `mapstructure:"LLM_BASE_URL" validate:"required,url"`
	LLMModel   string `mapstructure:"LLM_MODEL" validate:"required"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Squashed structs contribute their own tags.
		if field.Type.Kind() == reflect.Struct && (tag == "" || strings.HasPrefix(tag, ",")) {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
			continue
		}

		if tag != "" {
			viper.BindEnv(tag)
		}
	}
	slog.Debug("Environment variables bound")
}

func LoadConfig(ctx context.Context) (*Config, error) {
	// Optional .env for local runs; real environment variables win.
	_ = godotenv.Load()

	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("MEDIA_WORKERS", 1)
	viper.SetDefault("POLL_INTERVAL", "2s")
	viper.SetDefault("STALE_LOCK_AFTER", "30m")
	viper.SetDefault("MAX_DOWNLOAD_BYTES", 250*1024*1024)
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("SCRAPE_SETTLE", "6s")
	viper.SetDefault("SCRAPE_NAV_TIMEOUT", "60s")
	viper.SetDefault("R2_REGION", "auto")
	viper.SetDefault("STT_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("STT_MODEL", "whisper-1")
	viper.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("LLM_MODEL", "gpt-4o-mini")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.WorkerID) == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.WorkerID = host
	}

	slog.Info("Loaded configuration",
		"webserver_port", cfg.WebServerPort,
		"worker_id", cfg.WorkerID,
		"media_workers", cfg.MediaWorkers,
		"poll_interval", cfg.PollInterval,
		"r2_bucket", cfg.Storage.Bucket,
		"llm_model", cfg.AI.LLMModel,
	)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// ValidateWorker checks the settings only the media worker needs.
func (c *Config) ValidateWorker() error {
	validate := validator.New()
	var errs []error
	if err := validate.Struct(c.Storage); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := validate.Struct(c.AI); err != nil {
		errs = append(errs, fmt.Errorf("ai: %w", err))
	}
	return errors.Join(errs...)
}
