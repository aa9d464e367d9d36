package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	MetadataEndpoint string `envconfig:"METADATA_ENDPOINT" default:"https://bing.biturl.top" validate:"required,url"`

	DownloadDir   string `envconfig:"DOWNLOAD_DIR" default:"data/pictures" validate:"required"`
	ArchiveDir    string `envconfig:"ARCHIVE_DIR" default:"data/archive" validate:"required,nefield=DownloadDir"`
	ArchiveLayout string `envconfig:"ARCHIVE_LAYOUT" default:"flat" validate:"oneof=flat mirror"`
	LockFile      string `envconfig:"LOCK_FILE"`

	RunAt          string        `envconfig:"RUN_AT" default:"06:00" validate:"datetime=15:04"`
	RunOnStart     bool          `envconfig:"RUN_ON_START" default:"true"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	MaxRetries     uint          `envconfig:"MAX_RETRIES" default:"3" validate:"gte=1"`
	MaxBytes       int64         `envconfig:"MAX_BYTES" default:"52428800" validate:"gte=0"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`
	DBPath            string `envconfig:"DB_PATH" default:"potd.db"`

	S3 struct {
		Bucket          string `split_words:"true"`
		Prefix          string `split_words:"true"`
		Region          string `split_words:"true"`
		Endpoint        string `split_words:"true" validate:"omitempty,url"`
		AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
		SecretAccessKey string `split_words:"true"`
		ForcePathStyle  bool   `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"potd_downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		Enabled         bool          `split_words:"true" default:"true"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true" validate:"required_with=Username"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"2m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// ApplyArgs overrides the directories with positional command line arguments:
// the first one is the download directory, the second one the archive directory.
func (c *Config) ApplyArgs(args []string) {
	if len(args) > 0 && args[0] != "" {
		c.DownloadDir = args[0]
	}

	if len(args) > 1 && args[1] != "" {
		c.ArchiveDir = args[1]
	}
}

// Validate checks the loaded values, it must be called after ApplyArgs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// MirrorArchive reports whether the archive should keep the download directory tree.
func (c *Config) MirrorArchive() bool {
	return c.ArchiveLayout == "mirror"
}

// RunAtTime returns the hour and minute of the daily schedule.
func (c *Config) RunAtTime() (int, int, error) {
	t, err := time.Parse("15:04", c.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid RUN_AT %q: %w", c.RunAt, err)
	}

	return t.Hour(), t.Minute(), nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
