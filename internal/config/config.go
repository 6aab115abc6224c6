// Package config loads and validates auditor configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the headless Chromium engine.
type BrowserConfig struct {
	ExecPath string `mapstructure:"exec_path"`
	Headless bool   `mapstructure:"headless"`
	// NoSandbox is required when running as root inside containers.
	NoSandbox bool `mapstructure:"no_sandbox"`
	// UserAgents overrides the emulated user agent per browser name.
	UserAgents           map[string]string `mapstructure:"user_agents"`
	NavigationTimeoutSec int               `mapstructure:"navigation_timeout_seconds"`
	ActionTimeoutSec     int               `mapstructure:"action_timeout_seconds"`
}

// LimitsConfig bounds concurrency at every level.
type LimitsConfig struct {
	StaticParallel      int `mapstructure:"static_parallel"`
	VideoParallel       int `mapstructure:"video_parallel"`
	InspectionParallel  int `mapstructure:"inspection_parallel"`
	MaxConcurrentAudits int `mapstructure:"max_concurrent_audits"`
	QueueDepth          int `mapstructure:"queue_depth"`
	PostprocessWorkers  int `mapstructure:"postprocess_workers"`
}

// ArtifactsConfig controls capture encoding.
type ArtifactsConfig struct {
	TempFramesDir string `mapstructure:"temp_frames_dir"`
	WebPQuality   int    `mapstructure:"webp_quality"`
	VideoFPS      int    `mapstructure:"video_fps"`
	FFmpegPath    string `mapstructure:"ffmpeg_path"`
}

// StorageConfig selects the artifact blob backend.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig roots the local filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the Postgres session and result stores. An empty
// DSN keeps both in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	SessionsTable   string        `mapstructure:"sessions_table"`
	ResultsTable    string        `mapstructure:"results_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig configures the progress hub and its sinks.
type ProgressConfig struct {
	Enabled           bool                `mapstructure:"enabled"`
	LogEnabled        bool                `mapstructure:"log_enabled"`
	PrometheusEnabled bool                `mapstructure:"prometheus_enabled"`
	BufferSize        int                 `mapstructure:"buffer_size"`
	Batch             ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs     int                 `mapstructure:"sink_timeout_ms"`
}

// ProgressBatchConfig bounds hub batches.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// RateLimitConfig configures per-host navigation throttling.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// TelemetryConfig describes the OpenTelemetry resource and exporter.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.navigation_timeout_seconds", 60)
	v.SetDefault("browser.action_timeout_seconds", 30)
	v.SetDefault("limits.static_parallel", 5)
	v.SetDefault("limits.video_parallel", 3)
	v.SetDefault("limits.inspection_parallel", 1)
	v.SetDefault("limits.max_concurrent_audits", 5)
	v.SetDefault("limits.queue_depth", 64)
	v.SetDefault("limits.postprocess_workers", runtime.NumCPU())
	v.SetDefault("artifacts.temp_frames_dir", "temp_frames")
	v.SetDefault("artifacts.webp_quality", 80)
	v.SetDefault("artifacts.video_fps", 3)
	v.SetDefault("artifacts.ffmpeg_path", "ffmpeg")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local.base_dir", "artifacts")
	v.SetDefault("database.sessions_table", "audit_sessions")
	v.SetDefault("database.results_table", "audit_results")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.prometheus_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.default_rps", 2.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("telemetry.service_name", "site-auditor")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Limits.MaxConcurrentAudits <= 0 {
		return fmt.Errorf("limits.max_concurrent_audits must be > 0")
	}
	if c.Limits.QueueDepth <= 0 {
		return fmt.Errorf("limits.queue_depth must be > 0")
	}
	if c.Limits.StaticParallel <= 0 || c.Limits.VideoParallel <= 0 || c.Limits.InspectionParallel <= 0 {
		return fmt.Errorf("limits.*_parallel must be > 0")
	}
	if c.Artifacts.WebPQuality < 1 || c.Artifacts.WebPQuality > 100 {
		return fmt.Errorf("artifacts.webp_quality must be within 1..100")
	}
	if c.Artifacts.TempFramesDir == "" {
		return fmt.Errorf("artifacts.temp_frames_dir is required")
	}
	if c.Browser.NavigationTimeoutSec <= 0 {
		return fmt.Errorf("browser.navigation_timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.RateLimit.Enabled && c.RateLimit.DefaultRPS <= 0 {
		return fmt.Errorf("rate_limit.default_rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

// NavigationTimeout converts the configured browser navigation bound.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavigationTimeoutSec) * time.Second
}

// RequestTimeout converts the configured API request bound.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
