package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_FileKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Setenv("NODE_IPS", "")
	p := writeConfig(t, `
nodes:
  interval: 10s
  source:
    kind: static
    addresses: [10.0.0.1, 10.0.0.2]
metrics:
  enabled: false
`)

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Nodes.Interval != 10*time.Second {
		t.Fatalf("interval: want 10s, got %v", cfg.Nodes.Interval)
	}
	if cfg.Nodes.BatchDeadline != 25*time.Second || cfg.Nodes.Concurrency != 32 {
		t.Fatalf("cycle defaults lost: %+v", cfg.Nodes.CycleConfig)
	}
	if cfg.Nodes.Source.Kind != SourceStatic || len(cfg.Nodes.Source.Addresses) != 2 {
		t.Fatalf("source wrong: %+v", cfg.Nodes.Source)
	}
	if cfg.Nodes.Port.Port != 9103 {
		t.Fatalf("port default lost: %d", cfg.Nodes.Port.Port)
	}
	if cfg.Proxies.Remote.ConnectTimeout != 3*time.Second || cfg.Proxies.Remote.Timeout != 5*time.Second {
		t.Fatalf("remote defaults lost: %+v", cfg.Proxies.Remote)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics should be disabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLEETHEALTH_NODES_INTERVAL", "15s")
	t.Setenv("FLEETHEALTH_NODES_BATCH_DEADLINE", "12s")
	t.Setenv("FLEETHEALTH_PROXIES_CONCURRENCY", "4")
	t.Setenv("FLEETHEALTH_API_PUBLIC_KEYS", "pub_a,pub_b")
	t.Setenv("FLEETHEALTH_PROXIES_REMOTE_INSECURE_IGNORE_HOST_KEY", "true")
	t.Setenv("FLEETHEALTH_METRICS_DATABASE", "fleet")
	t.Setenv("NODE_IPS", "10.0.0.5, 10.0.0.6,")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Nodes.Interval != 15*time.Second || cfg.Nodes.BatchDeadline != 12*time.Second {
		t.Fatalf("node cycle overrides not applied: %+v", cfg.Nodes.CycleConfig)
	}
	if cfg.Proxies.Concurrency != 4 {
		t.Fatalf("proxy concurrency: want 4, got %d", cfg.Proxies.Concurrency)
	}
	if len(cfg.API.PublicKeys) != 2 || cfg.API.PublicKeys[0] != "pub_a" {
		t.Fatalf("public keys wrong: %+v", cfg.API.PublicKeys)
	}
	if !cfg.Proxies.Remote.InsecureIgnoreHostKey {
		t.Fatalf("insecure flag not applied")
	}
	if cfg.Metrics.Database != "fleet" {
		t.Fatalf("metrics database: %q", cfg.Metrics.Database)
	}
	if cfg.Nodes.Source.Kind != SourceStatic || strings.Join(cfg.Nodes.Source.Addresses, ",") != "10.0.0.5,10.0.0.6" {
		t.Fatalf("NODE_IPS not applied: %+v", cfg.Nodes.Source)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoad_UnparsableFile(t *testing.T) {
	p := writeConfig(t, "nodes: [this is not a mapping")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		expected string
	}{
		{"default config", func(c *Config) {}, ""},
		{"empty addr", func(c *Config) { c.API.Addr = "" }, "api.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"zero interval", func(c *Config) { c.Nodes.Interval = 0 }, "nodes.interval"},
		{"zero concurrency", func(c *Config) { c.Proxies.Concurrency = 0 }, "proxies.concurrency"},
		{"unknown source", func(c *Config) { c.Nodes.Source.Kind = "ldap" }, "nodes.source.kind"},
		{"static without addresses", func(c *Config) { c.Proxies.Source = SourceConfig{Kind: SourceStatic} }, "proxies.source.addresses"},
		{"postgres without dsn", func(c *Config) { c.Nodes.Source = SourceConfig{Kind: SourcePostgres} }, "nodes.source.dsn"},
		{"consul without key", func(c *Config) { c.Nodes.Source = SourceConfig{Kind: SourceConsul} }, "consul_key"},
		{"bad ping mode", func(c *Config) { c.Nodes.Ping.Mode = "arp" }, "nodes.ping.mode"},
		{"bad port", func(c *Config) { c.Nodes.Port.Port = 70000 }, "nodes.port.port"},
		{"no known hosts", func(c *Config) { c.Proxies.Remote.KnownHosts = "" }, "proxies.remote.known_hosts"},
		{"timeout below connect", func(c *Config) { c.Proxies.Remote.Timeout = time.Second }, "proxies.remote.timeout"},
		{"bad metrics url", func(c *Config) { c.Metrics.Endpoints = []string{"localhost:8086"} }, "metrics.endpoints"},
		{"metrics disabled skips checks", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.Endpoints = nil
		}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.expected == "" {
				if err != nil {
					t.Errorf("Expected no error, got '%v'", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error containing %q, got nil", test.expected)
			} else if !strings.Contains(err.Error(), test.expected) {
				t.Errorf("Expected error containing %q, got %v", test.expected, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.API.Addr = ""
	cfg.Nodes.Interval = 0
	cfg.Metrics.Database = ""

	err := cfg.Validate()
	if got := len(multierr.Errors(err)); got != 3 {
		t.Fatalf("want 3 errors, got %d: %v", got, err)
	}
}
