// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Source     SourceConfig     `mapstructure:"source"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Categories CategoriesConfig `mapstructure:"categories"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig describes the vendor page holding the option list.
type SourceConfig struct {
	URL                string `mapstructure:"url"`
	SelectName         string `mapstructure:"select_name"`
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	RandomDelaySeconds int    `mapstructure:"random_delay_seconds"`
	SkipValue          string `mapstructure:"skip_value"`
}

// ParserConfig overrides the label markers.
type ParserConfig struct {
	CurrencyMarker    string `mapstructure:"currency_marker"`
	OutOfStockMarker  string `mapstructure:"out_of_stock_marker"`
	DualChannelMarker string `mapstructure:"dual_channel_marker"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// StorageConfig sets the backend and paths for snapshot persistence.
type StorageConfig struct {
	Backend     string             `mapstructure:"backend"`
	Bucket      string             `mapstructure:"bucket"`
	Prefix      string             `mapstructure:"prefix"`
	ContentType string             `mapstructure:"content_type"`
	Local       LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for run notifications. An empty project keeps them in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CategoriesConfig names the labels applied by reclassification.
type CategoriesConfig struct {
	Dual   string `mapstructure:"dual"`
	Single string `mapstructure:"single"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAMTRACKER")
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("logging.development", true)
	v.SetDefault("source.url", "https://www.coolpc.com.tw/evaluate.php")
	v.SetDefault("source.select_name", "n6")
	v.SetDefault("source.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.random_delay_seconds", 0)
	v.SetDefault("source.skip_value", "0")
	v.SetDefault("parser.currency_marker", "$")
	v.SetDefault("parser.out_of_stock_marker", "缺貨")
	v.SetDefault("parser.dual_channel_marker", "雙q")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.migrate", false)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("pubsub.topic_name", "ramtracker-runs")
	v.SetDefault("categories.dual", "DDR5 雙通")
	v.SetDefault("categories.single", "DDR5 單通")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if c.Source.SelectName == "" {
		return fmt.Errorf("source.select_name must be set")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.RandomDelaySeconds < 0 {
		return fmt.Errorf("source.random_delay_seconds must be >= 0")
	}
	if c.Parser.CurrencyMarker == "" || c.Parser.OutOfStockMarker == "" || c.Parser.DualChannelMarker == "" {
		return fmt.Errorf("parser markers must be non-empty")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns must be <= database.max_conns")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// SourceTimeout returns the fetch timeout as a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
