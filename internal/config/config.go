// Package config provides the configuration system for the doctor server.
//
// Values come from, in increasing priority: built-in defaults, a YAML config
// file, and DOCTOR_* environment variables (DOCTOR_SERVER_PORT for
// server.port and so on).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DOCTOR"

// Config holds the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Script  ScriptConfig  `mapstructure:"script" yaml:"script"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Path            string        `mapstructure:"path" yaml:"path"`
	EventsPath      string        `mapstructure:"events_path" yaml:"events_path"` // empty disables the event stream
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WriteWait       time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ScriptConfig selects the rule script. An empty path means the built-in
// DOCTOR script.
type ScriptConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SessionConfig shapes each conversation.
type SessionConfig struct {
	MemorySize int      `mapstructure:"memory_size" yaml:"memory_size"` // 0 keeps the script's value
	Intro      []string `mapstructure:"intro" yaml:"intro"`             // extra lines after the greeting
	Separator  string   `mapstructure:"separator" yaml:"separator"`     // frame sent after each reply block
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Default returns a new configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Path:            "/eliza",
			EventsPath:      "/events",
			MaxMessageBytes: 4096,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Intro: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from file and environment variables. With an
// empty path it looks for config.yaml in the working directory and in
// ~/.config/doctor; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/doctor")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Script.Path = expandHome(cfg.Script.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server path must start with '/': %q", c.Server.Path)
	}
	if c.Server.EventsPath != "" {
		if !strings.HasPrefix(c.Server.EventsPath, "/") {
			return fmt.Errorf("server events_path must start with '/': %q", c.Server.EventsPath)
		}
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server max_message_bytes must be positive")
	}
	if c.Server.WriteWait <= 0 || c.Server.PongWait <= 0 {
		return fmt.Errorf("server write_wait and pong_wait must be positive")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server shutdown_timeout must not be negative")
	}
	if c.Session.MemorySize < 0 {
		return fmt.Errorf("session memory_size must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "off":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}
	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
		}
	}
	return c.validateRoutes()
}

// Routes every server registers regardless of configuration.
const (
	HealthPath   = "/health"
	SessionsPath = "/api/v1/sessions"
)

type route struct{ name, path string }

// validateRoutes rejects configured paths that would register the same
// pattern twice on one mux.
func (c *Config) validateRoutes() error {
	routes := []route{
		{"health route", HealthPath},
		{"sessions route", SessionsPath},
		{"server path", c.Server.Path},
	}
	if c.Server.EventsPath != "" {
		routes = append(routes, route{"server events_path", c.Server.EventsPath})
	}
	if c.Metrics.Enabled {
		routes = append(routes, route{"metrics path", c.Metrics.Path})
	}

	owner := make(map[string]string, len(routes))
	for _, r := range routes {
		if other, ok := owner[r.path]; ok {
			return fmt.Errorf("%s %q collides with the %s", r.name, r.path, other)
		}
		owner[r.path] = r.name
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// PingPeriod is how often the server pings a client. It must be shorter than
// PongWait.
func (s ServerConfig) PingPeriod() time.Duration {
	return s.PongWait * 9 / 10
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "doctor", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.path", d.Server.Path)
	v.SetDefault("server.events_path", d.Server.EventsPath)
	v.SetDefault("server.max_message_bytes", d.Server.MaxMessageBytes)
	v.SetDefault("server.write_wait", d.Server.WriteWait)
	v.SetDefault("server.pong_wait", d.Server.PongWait)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("script.path", d.Script.Path)
	v.SetDefault("session.memory_size", d.Session.MemorySize)
	v.SetDefault("session.intro", d.Session.Intro)
	v.SetDefault("session.separator", d.Session.Separator)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
