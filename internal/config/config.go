package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FLEETHEALTH_NODES_INTERVAL=15s.
const EnvPrefix = "FLEETHEALTH"

type Config struct {
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
	Nodes   NodeConfig    `yaml:"nodes"`
	Proxies ProxyConfig   `yaml:"proxies"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	PublicKeys     []string `yaml:"public_keys" split_words:"true"`
	AdminKeys      []string `yaml:"admin_keys" split_words:"true"`
	RatePerMinute  int      `yaml:"rate_per_minute" split_words:"true"`
	Burst          int      `yaml:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
}

type LoggingConfig struct {
	Dir    string `yaml:"dir"`
	Level  string `yaml:"level"`
	Stdout bool   `yaml:"stdout"`
}

// CycleConfig drives one scheduler loop.
type CycleConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchDeadline time.Duration `yaml:"batch_deadline" split_words:"true"`
	Concurrency   int           `yaml:"concurrency"`
}

// SourceConfig selects where a class reads its target list from.
//
//	static:    Addresses
//	file:      Path (one address per line)
//	inventory: Path, optional Group (Ansible INI inventory)
//	postgres:  DSN
//	consul:    ConsulAddr plus ConsulKey or ConsulService
type SourceConfig struct {
	Kind          string   `yaml:"kind"`
	Addresses     []string `yaml:"addresses"`
	Path          string   `yaml:"path"`
	Group         string   `yaml:"group"`
	DSN           string   `yaml:"dsn"`
	ConsulAddr    string   `yaml:"consul_addr" split_words:"true"`
	ConsulKey     string   `yaml:"consul_key" split_words:"true"`
	ConsulService string   `yaml:"consul_service" split_words:"true"`
}

const (
	SourceStatic    = "static"
	SourceFile      = "file"
	SourceInventory = "inventory"
	SourcePostgres  = "postgres"
	SourceConsul    = "consul"
)

type PingConfig struct {
	Mode       string        `yaml:"mode"` // icmp | exec
	Privileged bool          `yaml:"privileged"`
	Timeout    time.Duration `yaml:"timeout"`
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
}

const (
	PingICMP = "icmp"
	PingExec = "exec"
)

type PortConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type NodeConfig struct {
	CycleConfig `yaml:",inline"`
	Source      SourceConfig `yaml:"source"`
	Ping        PingConfig   `yaml:"ping"`
	Port        PortConfig   `yaml:"port"`
}

type RemoteConfig struct {
	User                  string        `yaml:"user"`
	Port                  int           `yaml:"port"`
	KeyFile               string        `yaml:"key_file" split_words:"true"`
	KnownHosts            string        `yaml:"known_hosts" split_words:"true"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key" split_words:"true"`
	Command               string        `yaml:"command"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout" split_words:"true"`
	Timeout               time.Duration `yaml:"timeout"`
}

type ProxyConfig struct {
	CycleConfig `yaml:",inline"`
	Source      SourceConfig `yaml:"source"`
	Remote      RemoteConfig `yaml:"remote"`
}

type MetricsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Endpoints []string      `yaml:"endpoints"`
	Database  string        `yaml:"database"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueSize int           `yaml:"queue_size" split_words:"true"`
}

// Default matches the legacy deployment: nodes from
// /tmp/nodes.list on a 30s cycle, port 9103, influx on localhost.
func Default() Config {
	return Config{
		API: APIConfig{
			Addr:          ":5000",
			RatePerMinute: 600,
			Burst:         120,
		},
		Logging: LoggingConfig{
			Dir:    "logs",
			Level:  "info",
			Stdout: true,
		},
		Nodes: NodeConfig{
			CycleConfig: CycleConfig{Interval: 30 * time.Second, BatchDeadline: 25 * time.Second, Concurrency: 32},
			Source:      SourceConfig{Kind: SourceFile, Path: "/tmp/nodes.list"},
			Ping:        PingConfig{Mode: PingICMP, Timeout: 2 * time.Second, Attempts: 1, Backoff: 200 * time.Millisecond},
			Port:        PortConfig{Port: 9103, Timeout: 2 * time.Second},
		},
		Proxies: ProxyConfig{
			CycleConfig: CycleConfig{Interval: 30 * time.Second, BatchDeadline: 25 * time.Second, Concurrency: 16},
			Source:      SourceConfig{Kind: SourceFile, Path: "/tmp/proxies.list"},
			Remote: RemoteConfig{
				User:           "keepalived",
				Port:           22,
				KeyFile:        "/etc/fleethealth/id_ed25519",
				KnownHosts:     "/etc/fleethealth/known_hosts",
				Command:        "cat /var/run/keepalived.state",
				ConnectTimeout: 3 * time.Second,
				Timeout:        5 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Endpoints: []string{"http://localhost:8086"},
			Database:  "monitoring",
			Timeout:   2 * time.Second,
			QueueSize: 1024,
		},
	}
}

func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type raw Config
	r := raw(Default())
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = Config(r)
	return nil
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional when empty), then .env and FLEETHEALTH_* overrides, then
// NODE_IPS. The result is validated; any error here is a startup failure.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// FromEnv loads without a config file.
func FromEnv() (*Config, error) {
	return Load("")
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

// applyLegacyEnv honours NODE_IPS, the comma separated node list the Ansible
// deployment exports.
func applyLegacyEnv(cfg *Config) {
	v := strings.TrimSpace(os.Getenv("NODE_IPS"))
	if v == "" {
		return
	}
	var addrs []string
	for _, a := range strings.Split(v, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return
	}
	cfg.Nodes.Source = SourceConfig{Kind: SourceStatic, Addresses: addrs}
}
