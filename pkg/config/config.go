package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	Service struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sync      SyncConfig      `yaml:"sync"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig represents the control WebSocket server configuration
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	MaxConnections int           `yaml:"max_connections"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBufferSize int           `yaml:"send_buffer_size"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
}

// HTTPConfig represents the operator/status HTTP surface configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig represents the optional shared-secret handshake. An empty
// secret disables authentication and every connection is implicitly
// authenticated, which is only sane when bound to loopback.
type AuthConfig struct {
	Secret      string        `yaml:"secret"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// RateLimitConfig represents per-connection message limits plus the
// per-address connection-attempt limit at the HTTP boundary.
type RateLimitConfig struct {
	MaxMessages  int           `yaml:"max_messages"`
	Window       time.Duration `yaml:"window"`
	UpgradeRate  float64       `yaml:"upgrade_rate"`
	UpgradeBurst int           `yaml:"upgrade_burst"`
}

// BroadcastConfig represents state fan-out tuning
type BroadcastConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	FollowEnabled  bool          `yaml:"follow_enabled"`
	FollowInterval time.Duration `yaml:"follow_interval"`
}

// SyncConfig represents the cross-window bus configuration
type SyncConfig struct {
	ChannelName string        `yaml:"channel_name"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration. The rate limit threshold,
// debounce interval and auth grace period are product tuning, not
// protocol constants, so they all live here rather than in code.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Address:        "127.0.0.1:8765",
			Path:           "/ws",
			MaxConnections: 32,
			MaxMessageSize: 4096,
			SendBufferSize: 64,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     30 * time.Second,
		},
		HTTP: HTTPConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Secret:      "",
			GracePeriod: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxMessages:  30,
			Window:       time.Second,
			UpgradeRate:  2,
			UpgradeBurst: 5,
		},
		Broadcast: BroadcastConfig{
			Debounce:       100 * time.Millisecond,
			FollowEnabled:  true,
			FollowInterval: 100 * time.Millisecond,
		},
		Sync: SyncConfig{
			ChannelName: "promptdeck-sync",
			SettleDelay: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
	cfg.Service.Name = "promptdeck"
	return cfg
}

// Load loads the configuration from a file, applying defaults and
// environment overrides. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Server.Address, err)
	}
	if c.RateLimit.MaxMessages <= 0 {
		return fmt.Errorf("rate_limit.max_messages must be positive, got %d", c.RateLimit.MaxMessages)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Auth.Secret != "" && c.Auth.GracePeriod <= 0 {
		return fmt.Errorf("auth.grace_period must be positive when a secret is set, got %s", c.Auth.GracePeriod)
	}
	return nil
}

// LoopbackOnly reports whether the server address binds to a loopback
// interface. Binding elsewhere is allowed but warned about.
func (c *Config) LoopbackOnly() bool {
	return IsLoopback(c.Server.Address)
}

// IsLoopback reports whether a host:port address names a loopback
// interface. The server uses it for the non-loopback bind warning.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(cfg *Config) {
	if addr := os.Getenv("PROMPTDECK_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if secret := os.Getenv("PROMPTDECK_AUTH_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	if level := os.Getenv("PROMPTDECK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Service.Environment = env
	}
}
