// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrTransloaditKeyRequired is returned when TRANSLOADIT_KEY is not set.
	ErrTransloaditKeyRequired = errors.New("config: TRANSLOADIT_KEY is required")
	// ErrTransloaditSecretRequired is returned when TRANSLOADIT_SECRET is not set.
	ErrTransloaditSecretRequired = errors.New("config: TRANSLOADIT_SECRET is required")
	// ErrInvalidConfig is returned when a value is outside its allowed range.
	ErrInvalidConfig = errors.New("config: invalid value")
)

// Animation modes.
const (
	// AnimationModeRemote imports the composited image by URL and merges it remotely.
	AnimationModeRemote = "remote"
	// AnimationModeFrames renders rotated frames locally and uploads them all.
	AnimationModeFrames = "frames"
)

// Config holds all configuration for the application.
type Config struct {
	// Transloadit settings
	TransloaditKey     string `env:"TRANSLOADIT_KEY, required" json:"-"`    // Masked in JSON
	TransloaditSecret  string `env:"TRANSLOADIT_SECRET, required" json:"-"` // Masked in JSON
	TransloaditBaseURL string `env:"TRANSLOADIT_BASE_URL, default=https://api2.transloadit.com" json:"transloadit_base_url" validate:"required,url"`

	// Template IDs
	TemplateResize    string `env:"TEMPLATE_RESIZE, default=cea84f9d24c74003ab7febd0187c5b7d" json:"template_resize" validate:"required"`
	TemplateRemoveBG  string `env:"TEMPLATE_REMOVE_BG, default=c7713a444d214d85a6aa0694de77b348" json:"template_remove_bg" validate:"required"`
	TemplateWatermark string `env:"TEMPLATE_WATERMARK, default=0f8a6a9156ed4a7c84b76a934a985b8f" json:"template_watermark" validate:"required"`
	TemplateAnimate   string `env:"TEMPLATE_ANIMATE, default=e8129b18ee35441cb1e7c2f43e777332" json:"template_animate" validate:"required"`

	// Asset settings
	AssetsDir string `env:"ASSETS_DIR, default=Assets" json:"assets_dir" validate:"required"`
	ImageName string `env:"IMAGE_NAME, default=okcomputer" json:"image_name" validate:"required"`

	// Animation settings
	FrameCount         int    `env:"FRAME_COUNT, default=60" json:"frame_count" validate:"gt=0"`
	AnimationLengthSec int    `env:"ANIMATION_LENGTH_SEC, default=2" json:"animation_length_sec" validate:"gt=0"`
	AnimationMode      string `env:"ANIMATION_MODE, default=remote" json:"animation_mode" validate:"oneof=remote frames"`

	// Mask geometry
	MaskCenterX     int    `env:"MASK_CENTER_X, default=175" json:"mask_center_x" validate:"gte=0"`
	MaskCenterY     int    `env:"MASK_CENTER_Y, default=175" json:"mask_center_y" validate:"gte=0"`
	MaskOuterRadius int    `env:"MASK_OUTER_RADIUS, default=175" json:"mask_outer_radius" validate:"gt=0"`
	MaskInnerRadius int    `env:"MASK_INNER_RADIUS, default=20" json:"mask_inner_radius" validate:"gte=0,ltfield=MaskOuterRadius"`
	MaskPreviewPath string `env:"MASK_PREVIEW_PATH" json:"mask_preview_path,omitempty"`

	// Remote job budget
	MaxAttempts  int           `env:"MAX_ATTEMPTS, default=5" json:"max_attempts" validate:"gt=0"`
	PollInterval time.Duration `env:"POLL_INTERVAL, default=1s" json:"poll_interval" validate:"gt=0"`
	MaxPolls     int           `env:"MAX_POLLS, default=600" json:"max_polls" validate:"gt=0"`

	// MaxDownloadBytes caps every artifact download (default 256 MiB).
	MaxDownloadBytes int64 `env:"MAX_DOWNLOAD_BYTES, default=268435456" json:"max_download_bytes" validate:"gt=0"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// AnimationLength returns the animation length as a duration.
func (c *Config) AnimationLength() time.Duration {
	return time.Duration(c.AnimationLengthSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig
// and validates it. It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "TRANSLOADIT_KEY") {
			return nil, ErrTransloaditKeyRequired
		}
		if strings.Contains(err.Error(), "TRANSLOADIT_SECRET") {
			return nil, ErrTransloaditSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	if c.TransloaditKey == "" {
		return ErrTransloaditKeyRequired
	}
	if c.TransloaditSecret == "" {
		return ErrTransloaditSecretRequired
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{TransloaditBaseURL: %s, AssetsDir: %s, ImageName: %s, FrameCount: %d, AnimationLengthSec: %d, AnimationMode: %s, MaxAttempts: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.TransloaditBaseURL,
		c.AssetsDir,
		c.ImageName,
		c.FrameCount,
		c.AnimationLengthSec,
		c.AnimationMode,
		c.MaxAttempts,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
