// Package config loads speechclip settings from an optional YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/maauso/speechclip/internal/vad"
)

// Static errors for configuration validation.
var (
	ErrInvalidEngine      = errors.New("config: VAD_ENGINE must be auto, silero or stub")
	ErrInvalidThreshold   = errors.New("config: VAD_THRESHOLD must be within [0, 1]")
	ErrInvalidMinSpeech   = errors.New("config: VAD_MIN_SPEECH_DURATION_MS must not be negative")
	ErrInvalidSampleRate  = errors.New("config: NORMALIZE_SAMPLE_RATE must be positive")
	ErrInvalidChunking    = errors.New("config: VAD_CHUNK_SECONDS and VAD_WORKERS must be positive")
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
	ErrInvalidTimeout     = errors.New("config: timeouts must not be negative")
	ErrInvalidRetries     = errors.New("config: MODEL_DOWNLOAD_RETRIES must not be negative")
	ErrS3RegionRequired   = errors.New("config: S3_REGION is required when S3_BUCKET is set")
	ErrOutputDirRequired  = errors.New("config: OUTPUT_DIR is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Output and scratch
	OutputDir string `env:"OUTPUT_DIR, overwrite, default=clips" yaml:"output_dir" json:"output_dir"`
	TempDir   string `env:"TEMP_DIR, overwrite, default=/tmp/speechclip" yaml:"temp_dir" json:"temp_dir"`

	// Normalization
	FFmpegPath          string        `env:"FFMPEG_PATH, overwrite, default=ffmpeg" yaml:"ffmpeg_path" json:"ffmpeg_path"`
	NormalizeSampleRate int           `env:"NORMALIZE_SAMPLE_RATE, overwrite, default=16000" yaml:"normalize_sample_rate" json:"normalize_sample_rate"`
	ConvertTimeout      time.Duration `env:"CONVERT_TIMEOUT, overwrite, default=5m" yaml:"convert_timeout" json:"convert_timeout"`

	// Voice activity detection
	VADEngine              string        `env:"VAD_ENGINE, overwrite, default=auto" yaml:"vad_engine" json:"vad_engine"`
	VADThreshold           float64       `env:"VAD_THRESHOLD, overwrite, default=0.5" yaml:"vad_threshold" json:"vad_threshold"`
	VADMinSpeechDurationMs int           `env:"VAD_MIN_SPEECH_DURATION_MS, overwrite, default=250" yaml:"vad_min_speech_duration_ms" json:"vad_min_speech_duration_ms"`
	VADChunkSeconds        int           `env:"VAD_CHUNK_SECONDS, overwrite, default=30" yaml:"vad_chunk_seconds" json:"vad_chunk_seconds"`
	VADWorkers             int           `env:"VAD_WORKERS, overwrite, default=1" yaml:"vad_workers" json:"vad_workers"`
	ProcessTimeout         time.Duration `env:"PROCESS_TIMEOUT, overwrite" yaml:"process_timeout" json:"process_timeout"` // zero means unbounded

	// Model provisioning
	ModelURL             string `env:"MODEL_URL, overwrite, default=https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx" yaml:"model_url" json:"model_url"`
	ModelCacheDir        string `env:"MODEL_CACHE_DIR, overwrite" yaml:"model_cache_dir" json:"model_cache_dir"` // defaults to <user cache dir>/speechclip
	ModelDownloadRetries int    `env:"MODEL_DOWNLOAD_RETRIES, overwrite, default=3" yaml:"model_download_retries" json:"model_download_retries"`
	ORTLibPath           string `env:"ORT_LIB_PATH, overwrite" yaml:"ort_lib_path" json:"ort_lib_path,omitempty"`

	// Job runner
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, overwrite, default=2" yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`

	// Optional S3 publishing
	S3Bucket           string `env:"S3_BUCKET, overwrite" yaml:"s3_bucket" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION, overwrite" yaml:"s3_region" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT, overwrite" yaml:"s3_endpoint" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, overwrite" yaml:"s3_prefix" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID, overwrite" yaml:"-" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY, overwrite" yaml:"-" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, overwrite, default=text" yaml:"log_format" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, overwrite, default=info" yaml:"log_level" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if clips should be published to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads the YAML file at path, if path is not empty, and then applies
// environment variables on top of it.
func Load(path string) (*Config, error) {
	return LoadWith(context.Background(), path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit lookuper for environment values.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the command line
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.ModelCacheDir == "" {
		cfg.ModelCacheDir = defaultModelCacheDir()
	}
	return cfg, nil
}

func defaultModelCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "speechclip")
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return ErrOutputDirRequired
	case !vad.Engine(c.VADEngine).IsValid():
		return fmt.Errorf("%w: got %q", ErrInvalidEngine, c.VADEngine)
	case c.VADThreshold < 0 || c.VADThreshold > 1:
		return ErrInvalidThreshold
	case c.VADMinSpeechDurationMs < 0:
		return ErrInvalidMinSpeech
	case c.NormalizeSampleRate <= 0:
		return ErrInvalidSampleRate
	case c.VADChunkSeconds <= 0 || c.VADWorkers <= 0:
		return ErrInvalidChunking
	case c.MaxConcurrentJobs <= 0:
		return ErrInvalidConcurrency
	case c.ConvertTimeout < 0 || c.ProcessTimeout < 0:
		return ErrInvalidTimeout
	case c.ModelDownloadRetries < 0:
		return ErrInvalidRetries
	case c.S3Bucket != "" && c.S3Region == "":
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger on stderr, keeping stdout free for
// job results.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stderr)
}

// NewLoggerTo creates a structured logger writing to w.
// When LogFormat is "json", it outputs JSON logs; otherwise text.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{OutputDir: %s, TempDir: %s, FFmpegPath: %s, NormalizeSampleRate: %d, VADEngine: %s, VADThreshold: %g, VADMinSpeechDurationMs: %d, VADChunkSeconds: %d, VADWorkers: %d, ProcessTimeout: %s, ModelCacheDir: %s, MaxConcurrentJobs: %d, S3Bucket: %s, S3Region: %s, S3Prefix: %s, LogFormat: %s, LogLevel: %s}",
		c.OutputDir,
		c.TempDir,
		c.FFmpegPath,
		c.NormalizeSampleRate,
		c.VADEngine,
		c.VADThreshold,
		c.VADMinSpeechDurationMs,
		c.VADChunkSeconds,
		c.VADWorkers,
		c.ProcessTimeout,
		c.ModelCacheDir,
		c.MaxConcurrentJobs,
		c.S3Bucket,
		c.S3Region,
		c.S3Prefix,
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
