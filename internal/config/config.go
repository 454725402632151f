// Package config loads server settings: defaults, then an optional YAML file,
// then environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the chat server.
type Config struct {
	Addr        string        `yaml:"addr"`
	DatabaseDSN string        `yaml:"database_dsn"`
	JWTSecret   string        `yaml:"jwt_secret"`
	RedisAddr   string        `yaml:"redis_addr"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	LogLevel    string        `yaml:"log_level"`

	// HistoryLimit caps a single history page.
	HistoryLimit int `yaml:"history_limit"`
	// SnippetLength is the rune length notification snippets are truncated to.
	SnippetLength int `yaml:"snippet_length"`
	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int `yaml:"send_buffer"`
	// AllowedOrigins restricts websocket upgrades. Empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoadDefaults populates Config with development defaults. DSN and JWT secret
// are left empty on purpose: Validate refuses to start without them.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.RedisAddr = "localhost:6379"
	c.TokenTTL = 24 * time.Hour
	c.LogLevel = "info"
	c.HistoryLimit = 50
	c.SnippetLength = 100
	c.SendBuffer = 256
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, the YAML file named by --config or
// CHAT_CONFIG, the environment and finally args (usually os.Args[1:]).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs, flagged, configPath := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	loadEnv(cfg)
	applyFlags(cfg, flagged, fs)

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("CHAT_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
}

// newFlagSet binds flags to a shadow Config so that only flags the user
// actually passed override file and environment values.
func newFlagSet(defaults *Config) (*pflag.FlagSet, *Config, *string) {
	shadow := *defaults
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)

	configPath := fs.StringP("config", "c", "", "path to YAML config file")
	fs.StringVarP(&shadow.Addr, "addr", "a", shadow.Addr, "http service address")
	fs.StringVarP(&shadow.DatabaseDSN, "dsn", "d", shadow.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVarP(&shadow.JWTSecret, "jwt-secret", "s", shadow.JWTSecret, "HMAC secret for JWTs")
	fs.StringVarP(&shadow.RedisAddr, "redis", "r", shadow.RedisAddr, "redis address")
	fs.DurationVar(&shadow.TokenTTL, "token-ttl", shadow.TokenTTL, "access token lifetime")
	fs.StringVar(&shadow.LogLevel, "log-level", shadow.LogLevel, "debug, info, warn or error")
	fs.IntVar(&shadow.HistoryLimit, "history-limit", shadow.HistoryLimit, "max messages per history page")
	fs.IntVar(&shadow.SnippetLength, "snippet-length", shadow.SnippetLength, "notification snippet length")
	fs.IntVar(&shadow.SendBuffer, "send-buffer", shadow.SendBuffer, "per-connection outbound queue size")
	fs.StringSliceVar(&shadow.AllowedOrigins, "allowed-origins", shadow.AllowedOrigins, "websocket origins")

	return fs, &shadow, configPath
}

func applyFlags(cfg, flagged *Config, fs *pflag.FlagSet) {
	set := map[string]func(){
		"addr":            func() { cfg.Addr = flagged.Addr },
		"dsn":             func() { cfg.DatabaseDSN = flagged.DatabaseDSN },
		"jwt-secret":      func() { cfg.JWTSecret = flagged.JWTSecret },
		"redis":           func() { cfg.RedisAddr = flagged.RedisAddr },
		"token-ttl":       func() { cfg.TokenTTL = flagged.TokenTTL },
		"log-level":       func() { cfg.LogLevel = flagged.LogLevel },
		"history-limit":   func() { cfg.HistoryLimit = flagged.HistoryLimit },
		"snippet-length":  func() { cfg.SnippetLength = flagged.SnippetLength },
		"send-buffer":     func() { cfg.SendBuffer = flagged.SendBuffer },
		"allowed-origins": func() { cfg.AllowedOrigins = flagged.AllowedOrigins },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}
