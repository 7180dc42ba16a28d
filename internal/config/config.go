package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vovakirdan/chatdispatch/internal/store"
)

// History backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Rooms   RoomsConfig   `mapstructure:"rooms" yaml:"rooms"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	WS      WSConfig      `mapstructure:"ws" yaml:"ws"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload"`
	JWT     JWTConfig     `mapstructure:"jwt" yaml:"jwt"`
}

// LogConfig controls the logger. Format is console or json.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// RoomsConfig declares the fixed room set.
type RoomsConfig struct {
	Names   []string `mapstructure:"names" yaml:"names"`
	Default []string `mapstructure:"default" yaml:"default"`
}

// HistoryConfig selects the history backend and its retention policy.
type HistoryConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	SQLitePath    string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
	store.Policy  `mapstructure:",squash" yaml:",inline"`
}

// WSConfig tunes websocket connections.
type WSConfig struct {
	SendBuffer      int     `mapstructure:"send_buffer" yaml:"send_buffer"`
	MaxMessageBytes int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RatePerSecond   float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	RateBurst       int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// UploadConfig controls the file upload endpoint.
type UploadConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	MaxBytes     int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	RequireToken bool   `mapstructure:"require_token" yaml:"require_token"`
}

// JWTConfig configures upload tokens. An empty secret disables them.
type JWTConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	Issuer string        `mapstructure:"issuer" yaml:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Rooms: RoomsConfig{
			Names:   []string{"general", "random", "tech"},
			Default: []string{"general"},
		},
		History: HistoryConfig{
			Backend:       BackendMemory,
			SQLitePath:    ":memory:",
			PruneInterval: time.Hour,
			Policy:        store.DefaultPolicy(),
		},
		WS: WSConfig{
			SendBuffer:      64,
			MaxMessageBytes: 64 << 10,
			RatePerSecond:   20,
			RateBurst:       40,
		},
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 10 << 20,
			BaseURL:  "/uploads",
		},
		JWT: JWTConfig{
			Issuer: "chatdispatch",
			TTL:    24 * time.Hour,
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if len(c.Rooms.Default) == 0 {
		errs = append(errs, errors.New("rooms.default: at least one default room is required"))
	}
	if slices.ContainsFunc(append(slices.Clone(c.Rooms.Names), c.Rooms.Default...), func(name string) bool {
		return strings.TrimSpace(name) == ""
	}) {
		errs = append(errs, errors.New("rooms: room names must not be blank"))
	}
	if !slices.Contains([]string{BackendMemory, BackendSQLite}, c.History.Backend) {
		errs = append(errs, fmt.Errorf("history.backend: unknown backend %q", c.History.Backend))
	}
	if c.History.ScrollbackCap <= 0 || c.History.MaxMessages <= 0 {
		errs = append(errs, errors.New("history: scrollback_cap and max_messages must be positive"))
	}
	if c.History.Retention <= 0 {
		errs = append(errs, errors.New("history.retention must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Upload.RequireToken && c.JWT.Secret == "" {
		errs = append(errs, errors.New("upload.require_token needs jwt.secret"))
	}
	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the settings exposed as command-line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
