// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/translation-progress/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig                    `mapstructure:"server"`
	Auth        AuthConfig                      `mapstructure:"auth"`
	DB          DBConfig                        `mapstructure:"db"`
	PubSub      PubSubConfig                    `mapstructure:"pubsub"`
	Lease       LeaseConfig                     `mapstructure:"lease"`
	Aggregation AggregationConfig               `mapstructure:"aggregation"`
	Publish     PublishConfig                   `mapstructure:"publish"`
	Archive     ArchiveConfig                   `mapstructure:"archive"`
	Logging     LoggingConfig                   `mapstructure:"logging"`
	Tracks      map[string]pipeline.TrackConfig `mapstructure:"tracks"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
// Backend selects "postgres" or "memory".
type DBConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for the downstream publish topic.
// Backend selects "pubsub" or "memory".
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LeaseConfig selects the per-group publish lease backend:
// "memory", "flock", or "postgres".
type LeaseConfig struct {
	Backend string `mapstructure:"backend"`
	LockDir string `mapstructure:"lock_dir"`
}

// AggregationConfig controls how snapshots are read and rolled up.
type AggregationConfig struct {
	Streaming bool `mapstructure:"streaming"`
}

// PublishConfig bounds the external publish call.
type PublishConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ArchiveConfig selects where monthly reports are stored:
// "gcs", "local", or "memory".
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROLLUP")
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
	v.SetDefault("db.backend", "postgres")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("pubsub.backend", "pubsub")
	v.SetDefault("lease.backend", "memory")
	v.SetDefault("lease.lock_dir", "/var/run/rollup/locks")
	v.SetDefault("aggregation.streaming", false)
	v.SetDefault("publish.timeout_seconds", 30)
	v.SetDefault("archive.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Backend {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("db.backend must be postgres or memory, got %q", c.DB.Backend)
	}
	switch c.PubSub.Backend {
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub backend")
		}
	case "memory":
	default:
		return fmt.Errorf("pubsub.backend must be pubsub or memory, got %q", c.PubSub.Backend)
	}
	switch c.Lease.Backend {
	case "memory", "postgres":
	case "flock":
		if c.Lease.LockDir == "" {
			return fmt.Errorf("lease.lock_dir must be set for the flock backend")
		}
	default:
		return fmt.Errorf("lease.backend must be memory, flock, or postgres, got %q", c.Lease.Backend)
	}
	if c.Lease.Backend == "postgres" && c.DB.Backend != "postgres" {
		return fmt.Errorf("lease.backend postgres requires db.backend postgres")
	}
	switch c.Archive.Backend {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("archive.backend must be gcs, local, or memory, got %q", c.Archive.Backend)
	}
	if c.Publish.TimeoutSeconds <= 0 {
		return fmt.Errorf("publish.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for id, track := range c.Tracks {
		if track.TextField == "" {
			return fmt.Errorf("tracks.%s.text_field must be set", id)
		}
		if len(track.GroupFields) == 0 {
			return fmt.Errorf("tracks.%s.group_fields must not be empty", id)
		}
	}
	return nil
}

// PublishTimeout converts the publish timeout config into a duration.
func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.Publish.TimeoutSeconds) * time.Second
}
