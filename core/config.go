package core

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

// MDNSConfig controls service advertisement on the local network.
type MDNSConfig struct {
	Enabled bool   `toml:"enabled" env:"COLLABTEXT_MDNS"`
	Service string `toml:"service"`
}

// ServerConfig configures the relay.
type ServerConfig struct {
	Listen   string `toml:"listen" env:"COLLABTEXT_LISTEN"`
	LogLevel string `toml:"log_level" env:"COLLABTEXT_LOG_LEVEL"`
	Redis    struct {
		// Empty keeps fan-out inside this process.
		Addr string `toml:"addr" env:"REDIS_ADDR"`
	} `toml:"redis"`
	Database struct {
		// Empty disables the room directory.
		URL string `toml:"url" env:"DATABASE_URL"`
	} `toml:"database"`
	MDNS MDNSConfig `toml:"mdns"`
}

// AgentConfig configures a replica agent.
type AgentConfig struct {
	Listen   string `toml:"listen" env:"COLLABTEXT_AGENT_LISTEN"`
	LogLevel string `toml:"log_level" env:"COLLABTEXT_LOG_LEVEL"`
	// Site overrides the persisted site identifier.
	Site  string `toml:"site" env:"COLLABTEXT_SITE"`
	Room  string `toml:"room" env:"COLLABTEXT_ROOM"`
	UIDir string `toml:"ui_dir" env:"COLLABTEXT_UI_DIR"`
	Relay struct {
		URL             string `toml:"url" env:"COLLABTEXT_RELAY_URL"`
		Discover        bool   `toml:"discover" env:"COLLABTEXT_RELAY_DISCOVER"`
		Service         string `toml:"service"`
		DiscoverTimeout int    `toml:"discover_timeout_seconds"`
		MaxRetrySeconds int    `toml:"max_retry_seconds"`
	} `toml:"relay"`
	State struct {
		Path string `toml:"path" env:"COLLABTEXT_STATE"`
	} `toml:"state"`
	Sync struct {
		// "delta" sends one record per edit, "snapshot" the whole store.
		Mode string `toml:"mode" env:"COLLABTEXT_SYNC_MODE"`
	} `toml:"sync"`
	MDNS MDNSConfig `toml:"mdns"`
}

// Sync modes.
const (
	SyncDelta    = "delta"
	SyncSnapshot = "snapshot"
)

// DefaultServerConfig returns the relay defaults.
func DefaultServerConfig() *ServerConfig {
	c := &ServerConfig{Listen: ":8081", LogLevel: "INFO"}
	c.MDNS = MDNSConfig{Enabled: true, Service: "_collabtext-relay._tcp"}
	return c
}

// DefaultAgentConfig returns the agent defaults.
func DefaultAgentConfig() *AgentConfig {
	c := &AgentConfig{Listen: ":8080", LogLevel: "INFO", Room: "test-doc", UIDir: "../ui"}
	c.Relay.Discover = true
	c.Relay.Service = "_collabtext-relay._tcp"
	c.Relay.DiscoverTimeout = 15
	c.Relay.MaxRetrySeconds = 60
	c.State.Path = "collabtext-agent.db"
	c.Sync.Mode = SyncDelta
	c.MDNS = MDNSConfig{Enabled: true, Service: "_collabtext._tcp"}
	return c
}

// LoadServerConfig layers the TOML file at path (if any) and the environment
// over the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	c := DefaultServerConfig()
	if err := load(path, c); err != nil {
		return nil, err
	}
	if c.Listen == "" {
		return nil, fmt.Errorf("config: listen address is empty")
	}
	return c, nil
}

// LoadAgentConfig layers the TOML file at path (if any) and the environment
// over the defaults.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	c := DefaultAgentConfig()
	if err := load(path, c); err != nil {
		return nil, err
	}
	switch {
	case c.Room == "":
		return nil, fmt.Errorf("config: room is empty")
	case c.Sync.Mode != SyncDelta && c.Sync.Mode != SyncSnapshot:
		return nil, fmt.Errorf("config: unknown sync mode %q", c.Sync.Mode)
	case c.Relay.URL == "" && !c.Relay.Discover:
		return nil, fmt.Errorf("config: no relay url and discovery disabled")
	}
	return c, nil
}

func load(path string, target any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
