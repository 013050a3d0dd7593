package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Defaults applied when neither config.toml nor the environment sets a value.
const (
	DefaultServerURL   = "http://localhost:8000"
	DefaultPushURL     = "ws://localhost:8001"
	DefaultListenAddr  = "127.0.0.1:8600"
	DefaultPollSeconds = 30
)

// Config represents the global ~/.getchat/config.toml, with GETCHAT_*
// environment variables taking precedence over file values.
type Config struct {
	DefaultProfile string `toml:"default_profile" env:"GETCHAT_PROFILE"`

	// ServerURL is the base URL of the pull-channel REST API.
	ServerURL string `toml:"server_url" env:"GETCHAT_SERVER_URL"`

	// PushURL is the WebSocket endpoint of the push channel.
	PushURL string `toml:"push_url" env:"GETCHAT_PUSH_URL"`

	// ListenAddr is the localhost address the daemon's HTTP API binds to.
	ListenAddr string `toml:"listen_addr" env:"GETCHAT_LISTEN_ADDR"`

	// PollSeconds is the directory/invitation refresh interval.
	PollSeconds int `toml:"poll_seconds" env:"GETCHAT_POLL_SECONDS"`
}

// Load reads config from the given path, overlays environment variables,
// and fills defaults. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	// Optional .env in the working directory, vault-sync style.
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.PushURL == "" {
		c.PushURL = DefaultPushURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.PollSeconds <= 0 {
		c.PollSeconds = DefaultPollSeconds
	}
}
