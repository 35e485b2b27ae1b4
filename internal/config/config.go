// Package config loads runtime configuration via viper, following
// go-server-3's internal/config package: defaults set first, then an
// optional config file, then environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the sync server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Room        RoomConfig        `mapstructure:"room"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	EventBus    EventBusConfig    `mapstructure:"eventbus"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains network-level settings for the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
}

// RoomConfig controls session timers and tombstone bookkeeping, see
// spec §4.2 and §3.
type RoomConfig struct {
	StartWait            time.Duration `mapstructure:"start_wait"`
	RemovalWait          time.Duration `mapstructure:"removal_wait"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	JanitorPeriod        time.Duration `mapstructure:"janitor_period"`
	DataDebounce         time.Duration `mapstructure:"data_debounce"`
	MaxTombstones        int           `mapstructure:"max_tombstones"`
	TombstonePruneBuffer int           `mapstructure:"tombstone_prune_buffer"`
	PushRateLimit        float64       `mapstructure:"push_rate_limit"`
	PushBurst            int           `mapstructure:"push_burst"`
}

// PersistenceConfig selects and tunes the snapshot backend.
type PersistenceConfig struct {
	Backend     string        `mapstructure:"backend"` // "redis", "file", or "none"
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	FileDir     string        `mapstructure:"file_dir"`
	Throttle    time.Duration `mapstructure:"throttle"`
}

// EventBusConfig controls the optional NATS lifecycle publisher.
type EventBusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// MetricsConfig controls Prometheus/diagnostics endpoints.
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	Endpoint       string        `mapstructure:"endpoint"`
	ServiceName    string        `mapstructure:"service_name"`
	SystemInterval time.Duration `mapstructure:"system_interval"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from environment variables and an optional
// config file named "odin-sync" (.yaml/.json/.toml) on the current
// directory or ./config.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.read_buffer_size", 16<<10)
	v.SetDefault("server.write_buffer_size", 16<<10)

	v.SetDefault("room.start_wait", 10*time.Second)
	v.SetDefault("room.removal_wait", 10*time.Second)
	v.SetDefault("room.idle_timeout", 20*time.Second)
	v.SetDefault("room.janitor_period", 2*time.Second)
	v.SetDefault("room.data_debounce", 16*time.Millisecond)
	v.SetDefault("room.max_tombstones", 3000)
	v.SetDefault("room.tombstone_prune_buffer", 300)
	v.SetDefault("room.push_rate_limit", 120.0)
	v.SetDefault("room.push_burst", 240)

	v.SetDefault("persistence.backend", "file")
	v.SetDefault("persistence.redis_addr", "localhost:6379")
	v.SetDefault("persistence.redis_prefix", "odin-sync:")
	v.SetDefault("persistence.file_dir", "./data/rooms")
	v.SetDefault("persistence.throttle", 10*time.Second)

	v.SetDefault("eventbus.enabled", false)
	v.SetDefault("eventbus.url", "nats://localhost:4222")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9095")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.service_name", "odin-sync")
	v.SetDefault("metrics.system_interval", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("odin-sync")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("ODIN_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.ReadInConfig() // config file is optional

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
