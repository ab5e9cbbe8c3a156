package domain

import (
	"strings"
	"time"
)

// ProxyState is the keepalived/VRRP state reported by a proxy.
type ProxyState string

const (
	StateMaster      ProxyState = "MASTER"
	StateBackup      ProxyState = "BACKUP"
	StateFault       ProxyState = "FAULT"
	StateUnknown     ProxyState = "UNKNOWN"
	StateUnreachable ProxyState = "UNREACHABLE"
)

// ParseProxyState maps a raw token from the remote host onto the fixed
// vocabulary. Anything unrecognised is UNKNOWN; UNREACHABLE is never parsed
// from remote output since only the probe itself can decide that.
func ParseProxyState(raw string) ProxyState {
	switch s := ProxyState(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StateMaster, StateBackup, StateFault:
		return s
	}
	return StateUnknown
}

// Healthy reports whether the instance is reachable and taking part in VRRP.
func (s ProxyState) Healthy() bool {
	return s == StateMaster || s == StateBackup
}

// ProbeKind names the probe set that produced an outcome.
type ProbeKind string

const (
	KindNode        ProbeKind = "ping+port"
	KindRemoteState ProbeKind = "remote_state"
)

// ProbeOutcome is the result of probing one target in one cycle. Once the
// prober hands it off it is shared read-only by the snapshot and the
// metrics path.
type ProbeOutcome struct {
	Target    Target        `json:"-"`
	Kind      ProbeKind     `json:"kind"`
	Up        bool          `json:"up"`
	State     ProxyState    `json:"state,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"-"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Address is flattened into the JSON payload by the API layer.
func (o ProbeOutcome) Address() string { return o.Target.Address }

// MetricValue is the numeric value published for this outcome:
// nodes report up as 1, proxies report MASTER as 1.
func (o ProbeOutcome) MetricValue() float64 {
	switch o.Target.Class {
	case ClassProxy:
		if o.State == StateMaster {
			return 1
		}
		return 0
	default:
		if o.Up {
			return 1
		}
		return 0
	}
}

// Snapshot is the immutable result of one completed cycle for a class.
type Snapshot struct {
	Class     TargetClass
	Timestamp time.Time
	Outcomes  []ProbeOutcome
}

// Len is safe on a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Outcomes)
}

// Healthy returns the addresses whose outcome is up, in snapshot order.
func (s *Snapshot) Healthy() []string {
	out := []string{}
	if s == nil {
		return out
	}
	for _, o := range s.Outcomes {
		if o.Up {
			out = append(out, o.Target.Address)
		}
	}
	return out
}

// MetricPoint is one line handed to the metrics sink.
type MetricPoint struct {
	Measurement string
	Host        string
	Value       float64
	Tags        map[string]string
	Timestamp   time.Time
}
