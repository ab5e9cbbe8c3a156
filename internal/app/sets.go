package app

import (
	"time"

	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/probe"
)

// NodeSet builds ping+port from config.
func NodeSet(cfg config.NodeConfig) probe.Set {
	var ping probe.Probe
	switch cfg.Ping.Mode {
	case config.PingExec:
		ping = probe.NewExecPingProbe(cfg.Ping.Timeout)
	default:
		ping = probe.NewICMPProbe(cfg.Ping.Timeout, cfg.Ping.Privileged)
	}
	if cfg.Ping.Attempts > 1 {
		ping = &probe.RetryProbe{Inner: ping, Attempts: cfg.Ping.Attempts, Backoff: cfg.Ping.Backoff}
	}
	return probe.NewNodeSet(ping, probe.NewPortProbe(cfg.Port.Port, cfg.Port.Timeout))
}

// nodeProbeTimeout bounds one NodeSet.Run: every ping attempt with its
// backoff, then the port check.
func nodeProbeTimeout(cfg config.NodeConfig) time.Duration {
	attempts := max(cfg.Ping.Attempts, 1)
	d := time.Duration(attempts)*cfg.Ping.Timeout + time.Duration(attempts-1)*cfg.Ping.Backoff + cfg.Port.Timeout
	return d + 500*time.Millisecond
}

// ProxySet builds the SSH remote-state probe from config.
func ProxySet(cfg config.ProxyConfig) (probe.Set, error) {
	runner, err := probe.NewSSHRunner(cfg.Remote)
	if err != nil {
		return nil, err
	}
	return probe.NewProxySet(&probe.RemoteStateProbe{
		Runner:  runner,
		Command: cfg.Remote.Command,
		Timeout: cfg.Remote.Timeout,
	}), nil
}

func proxyProbeTimeout(cfg config.ProxyConfig) time.Duration {
	return cfg.Remote.Timeout + 500*time.Millisecond
}
