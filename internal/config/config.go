// Package config holds the node configuration. One Config is built at
// startup and handed to the components that need it; there are no
// process-wide mutable settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Gossip    GossipConfig    `toml:"gossip"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Admin     AdminConfig     `toml:"admin"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	Home        string `toml:"home"`
	Description string `toml:"description"`
}

// GossipConfig controls the shared status topic and its transport.
type GossipConfig struct {
	Topic      string `toml:"topic"`
	ListenAddr string `toml:"listen_addr"`
}

// DiscoveryConfig controls local-network peer discovery.
type DiscoveryConfig struct {
	Group    string   `toml:"group"`
	Interval duration `toml:"interval"`
	TTL      duration `toml:"ttl"`
}

// AdminConfig controls the HTTP admin surface.
type AdminConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// duration lets TOML carry values like "2s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Node: NodeConfig{
			Home: defaultHome(),
		},
		Gossip: GossipConfig{
			Topic:      "peer-status",
			ListenAddr: "0.0.0.0:0",
		},
		Discovery: DiscoveryConfig{
			Group:    "239.81.12.5:5350",
			Interval: duration(2 * time.Second),
			TTL:      duration(6 * time.Second),
		},
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML config file over the defaults. An empty path means
// defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the node cannot run with.
func (c Config) Validate() error {
	if c.Gossip.Topic == "" {
		return fmt.Errorf("config: gossip.topic must not be empty")
	}
	if c.Gossip.ListenAddr == "" {
		return fmt.Errorf("config: gossip.listen_addr must not be empty")
	}
	if c.Discovery.Group == "" {
		return fmt.Errorf("config: discovery.group must not be empty")
	}
	if c.Discovery.Interval.Duration() <= 0 {
		return fmt.Errorf("config: discovery.interval must be positive")
	}
	if c.Discovery.TTL.Duration() <= c.Discovery.Interval.Duration() {
		return fmt.Errorf("config: discovery.ttl must exceed discovery.interval")
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("config: admin.port out of range")
	}
	return nil
}

func defaultHome() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ".peerscope"
	}
	return filepath.Join(h, ".peerscope")
}
