package config

import (
	"fmt"
	"net/url"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	fmtErrEmptyConfigOption = "config option %s is required"
	fmtErrPositive          = "config option %s must be greater than zero"
	fmtErrPortRange         = "config option %s must be in the range 1-65535"
	fmtErrOneOf             = "config option %s must be one of %v, got %q"
)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	var err error
	err = multierr.Append(err, c.validateAPI())
	err = multierr.Append(err, c.validateLogging())
	err = multierr.Append(err, validateCycle("nodes", c.Nodes.CycleConfig))
	err = multierr.Append(err, validateSource("nodes.source", c.Nodes.Source))
	err = multierr.Append(err, c.validatePing())
	err = multierr.Append(err, c.validatePort())
	err = multierr.Append(err, validateCycle("proxies", c.Proxies.CycleConfig))
	err = multierr.Append(err, validateSource("proxies.source", c.Proxies.Source))
	err = multierr.Append(err, c.validateRemote())
	err = multierr.Append(err, c.validateMetrics())
	return err
}

func (c *Config) validateAPI() error {
	if c.API.Addr == "" {
		return fmt.Errorf(fmtErrEmptyConfigOption, "api.addr")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config option logging.level: %w", err)
	}
	return nil
}

func validateCycle(name string, cc CycleConfig) error {
	var err error
	if cc.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, name+".interval"))
	}
	if cc.BatchDeadline <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, name+".batch_deadline"))
	}
	if cc.Concurrency < 1 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, name+".concurrency"))
	}
	return err
}

func validateSource(name string, s SourceConfig) error {
	switch s.Kind {
	case SourceStatic:
		if len(s.Addresses) == 0 {
			return fmt.Errorf(fmtErrEmptyConfigOption, name+".addresses")
		}
	case SourceFile, SourceInventory:
		if s.Path == "" {
			return fmt.Errorf(fmtErrEmptyConfigOption, name+".path")
		}
	case SourcePostgres:
		if s.DSN == "" {
			return fmt.Errorf(fmtErrEmptyConfigOption, name+".dsn")
		}
	case SourceConsul:
		if s.ConsulKey == "" && s.ConsulService == "" {
			return fmt.Errorf(fmtErrEmptyConfigOption, name+".consul_key or "+name+".consul_service")
		}
	default:
		return fmt.Errorf(fmtErrOneOf, name+".kind",
			[]string{SourceStatic, SourceFile, SourceInventory, SourcePostgres, SourceConsul}, s.Kind)
	}
	return nil
}

func (c *Config) validatePing() error {
	p := c.Nodes.Ping
	var err error
	if p.Mode != PingICMP && p.Mode != PingExec {
		err = multierr.Append(err, fmt.Errorf(fmtErrOneOf, "nodes.ping.mode", []string{PingICMP, PingExec}, p.Mode))
	}
	if p.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "nodes.ping.timeout"))
	}
	if p.Attempts < 1 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "nodes.ping.attempts"))
	}
	return err
}

func (c *Config) validatePort() error {
	p := c.Nodes.Port
	var err error
	if p.Port <= 0 || p.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPortRange, "nodes.port.port"))
	}
	if p.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "nodes.port.timeout"))
	}
	return err
}

func (c *Config) validateRemote() error {
	r := c.Proxies.Remote
	var err error
	if r.User == "" {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "proxies.remote.user"))
	}
	if r.Port <= 0 || r.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPortRange, "proxies.remote.port"))
	}
	if r.KeyFile == "" {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "proxies.remote.key_file"))
	}
	if r.KnownHosts == "" && !r.InsecureIgnoreHostKey {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "proxies.remote.known_hosts"))
	}
	if r.Command == "" {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "proxies.remote.command"))
	}
	if r.ConnectTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "proxies.remote.connect_timeout"))
	}
	if r.Timeout < r.ConnectTimeout {
		err = multierr.Append(err, fmt.Errorf("config option proxies.remote.timeout must be at least proxies.remote.connect_timeout"))
	}
	return err
}

func (c *Config) validateMetrics() error {
	m := c.Metrics
	if !m.Enabled {
		return nil
	}
	var err error
	if len(m.Endpoints) == 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "metrics.endpoints"))
	}
	for _, e := range m.Endpoints {
		u, perr := url.Parse(e)
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			err = multierr.Append(err, fmt.Errorf("config option metrics.endpoints: invalid URL %q", e))
		}
	}
	if m.Database == "" {
		err = multierr.Append(err, fmt.Errorf(fmtErrEmptyConfigOption, "metrics.database"))
	}
	if m.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "metrics.timeout"))
	}
	if m.QueueSize < 1 {
		err = multierr.Append(err, fmt.Errorf(fmtErrPositive, "metrics.queue_size"))
	}
	return err
}
