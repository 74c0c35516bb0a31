package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Ingest          IngestConfig       `yaml:"ingest"`
	Sinks           SinksConfig        `yaml:"sinks"`
	RemoteConfig    RemoteConfigConfig `yaml:"remote_config"`
	Database        DatabaseConfig     `yaml:"database"`
	Journal         JournalConfig      `yaml:"journal"`
	EventBus        EventBusConfig     `yaml:"eventbus"`
	Log             LogConfig          `yaml:"log"`
	Script          string             `yaml:"script"` // optional Lua event hook
	ShutdownTimeout Duration           `yaml:"shutdown_timeout"`
}

// IngestConfig contains the client-facing server settings
type IngestConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty = allow all
}

// SinksConfig contains the telemetry backend settings
type SinksConfig struct {
	GameAnalytics GameAnalyticsConfig `yaml:"gameanalytics"`
	PlayFab       PlayFabConfig       `yaml:"playfab"`
	Stdout        bool                `yaml:"stdout"` // debug sink
}

// GameAnalyticsConfig contains the GameAnalytics collector settings
type GameAnalyticsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Endpoint     string   `yaml:"endpoint"`
	GameKey      string   `yaml:"game_key"`
	SecretKey    string   `yaml:"secret_key"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout Duration `yaml:"batch_timeout"`
	Timeout      Duration `yaml:"timeout"` // HTTP timeout per batch post
}

// PlayFabConfig contains the PlayFab title endpoint settings
type PlayFabConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Endpoint  string   `yaml:"endpoint"`
	TitleID   string   `yaml:"title_id"`
	SecretKey string   `yaml:"secret_key"`
	Timeout   Duration `yaml:"timeout"`
}

// RemoteConfigConfig contains the remote-config lookup settings
type RemoteConfigConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint"`
	TTL      Duration `yaml:"ttl"` // per-key cache lifetime
	Timeout  Duration `yaml:"timeout"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig contains delivery journal settings
type JournalConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./telemetryd.sqlite"
	}

	// Ingest defaults
	if cfg.Ingest.Host == "" {
		cfg.Ingest.Host = "0.0.0.0"
	}
	if cfg.Ingest.Port == 0 {
		cfg.Ingest.Port = 8085
	}

	// GameAnalytics defaults
	if cfg.Sinks.GameAnalytics.Endpoint == "" {
		cfg.Sinks.GameAnalytics.Endpoint = "https://api.gameanalytics.com"
	}
	if cfg.Sinks.GameAnalytics.BatchSize == 0 {
		cfg.Sinks.GameAnalytics.BatchSize = 64
	}
	if cfg.Sinks.GameAnalytics.BatchTimeout == 0 {
		cfg.Sinks.GameAnalytics.BatchTimeout = Duration(2 * time.Second)
	}
	if cfg.Sinks.GameAnalytics.Timeout == 0 {
		cfg.Sinks.GameAnalytics.Timeout = Duration(10 * time.Second)
	}

	// PlayFab defaults
	if cfg.Sinks.PlayFab.Timeout == 0 {
		cfg.Sinks.PlayFab.Timeout = Duration(10 * time.Second)
	}

	// Remote-config defaults
	if cfg.RemoteConfig.TTL == 0 {
		cfg.RemoteConfig.TTL = Duration(5 * time.Minute)
	}
	if cfg.RemoteConfig.Timeout == 0 {
		cfg.RemoteConfig.Timeout = Duration(10 * time.Second)
	}

	// Journal defaults
	if cfg.Journal.CleanupInterval == 0 {
		cfg.Journal.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Journal.RetentionDays == 0 {
		cfg.Journal.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects configurations that cannot start. These are startup
// failures, distinct from per-event validation.
func (c *Config) validate() error {
	ga := c.Sinks.GameAnalytics
	if ga.Enabled && (ga.GameKey == "" || ga.SecretKey == "") {
		return fmt.Errorf("gameanalytics sink enabled but game_key/secret_key missing")
	}
	pf := c.Sinks.PlayFab
	if pf.Enabled && (pf.TitleID == "" || pf.SecretKey == "") {
		return fmt.Errorf("playfab sink enabled but title_id/secret_key missing")
	}
	if !ga.Enabled && !pf.Enabled && !c.Sinks.Stdout {
		return fmt.Errorf("no sinks enabled")
	}
	if c.RemoteConfig.Enabled && c.RemoteConfig.Endpoint == "" {
		return fmt.Errorf("remote_config enabled but endpoint missing")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
