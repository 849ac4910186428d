package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	def := Default()
	if cfg.Gossip.Topic != def.Gossip.Topic {
		t.Fatalf("topic = %q, want default %q", cfg.Gossip.Topic, def.Gossip.Topic)
	}
	if cfg.Discovery.Interval.Duration() != 2*time.Second {
		t.Fatalf("interval = %v, want 2s", cfg.Discovery.Interval.Duration())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[node]
description = "rack 3 / shelf 1"

[gossip]
topic = "lab-status"
listen_addr = "0.0.0.0:7421"

[discovery]
interval = "500ms"
ttl = "3s"

[admin]
port = 3100
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gossip.Topic != "lab-status" {
		t.Fatalf("topic = %q, want lab-status", cfg.Gossip.Topic)
	}
	if cfg.Node.Description != "rack 3 / shelf 1" {
		t.Fatalf("description = %q", cfg.Node.Description)
	}
	if cfg.Discovery.Interval.Duration() != 500*time.Millisecond {
		t.Fatalf("interval = %v, want 500ms", cfg.Discovery.Interval.Duration())
	}
	if cfg.Admin.Port != 3100 {
		t.Fatalf("admin port = %d, want 3100", cfg.Admin.Port)
	}
	// Unset sections keep defaults.
	if cfg.Discovery.Group != Default().Discovery.Group {
		t.Fatalf("group = %q, want default", cfg.Discovery.Group)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty topic", func(c *Config) { c.Gossip.Topic = "" }},
		{"empty listen addr", func(c *Config) { c.Gossip.ListenAddr = "" }},
		{"empty group", func(c *Config) { c.Discovery.Group = "" }},
		{"zero interval", func(c *Config) { c.Discovery.Interval = 0 }},
		{"ttl below interval", func(c *Config) { c.Discovery.TTL = c.Discovery.Interval }},
		{"port out of range", func(c *Config) { c.Admin.Port = 70000 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
