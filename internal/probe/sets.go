package probe

import (
	"context"
	"time"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// NodeSet reports a node up only when both Ping and Port succeed. Port is not
// tried after a failed ping; the detail says which check failed.
type NodeSet struct {
	Ping Probe
	Port Probe
}

func NewNodeSet(ping, port Probe) *NodeSet {
	return &NodeSet{Ping: ping, Port: port}
}

func (s *NodeSet) Class() domain.TargetClass { return domain.ClassNode }

func (s *NodeSet) Run(ctx context.Context, t domain.Target) domain.ProbeOutcome {
	start := time.Now()
	out := domain.ProbeOutcome{Target: t, Kind: domain.KindNode}

	if ping := s.Ping.Run(ctx, t.Address); !ping.OK {
		out.Detail = s.Ping.Name() + ": " + ping.Detail + "; " + s.Port.Name() + " skipped"
	} else if port := s.Port.Run(ctx, t.Address); !port.OK {
		out.Detail = s.Port.Name() + ": " + port.Detail
	} else {
		out.Up = true
	}

	out.Duration = time.Since(start)
	out.CheckedAt = time.Now().UTC()
	return out
}

func (s *NodeSet) Synthetic(t domain.Target, reason string) domain.ProbeOutcome {
	return domain.ProbeOutcome{
		Target:    t,
		Kind:      domain.KindNode,
		Up:        false,
		Detail:    reason,
		CheckedAt: time.Now().UTC(),
	}
}

// ProxySet reports whatever state the remote probe returns.
type ProxySet struct {
	Remote StateProbe
}

func NewProxySet(remote StateProbe) *ProxySet {
	return &ProxySet{Remote: remote}
}

func (s *ProxySet) Class() domain.TargetClass { return domain.ClassProxy }

func (s *ProxySet) Run(ctx context.Context, t domain.Target) domain.ProbeOutcome {
	start := time.Now()
	state, detail := s.Remote.Run(ctx, t.Address)
	return domain.ProbeOutcome{
		Target:    t,
		Kind:      domain.KindRemoteState,
		Up:        state.Healthy(),
		State:     state,
		Detail:    detail,
		Duration:  time.Since(start),
		CheckedAt: time.Now().UTC(),
	}
}

func (s *ProxySet) Synthetic(t domain.Target, reason string) domain.ProbeOutcome {
	return domain.ProbeOutcome{
		Target:    t,
		Kind:      domain.KindRemoteState,
		State:     domain.StateUnknown,
		Detail:    reason,
		CheckedAt: time.Now().UTC(),
	}
}
