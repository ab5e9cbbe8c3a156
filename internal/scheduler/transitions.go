package scheduler

import (
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// Transitions logs per-target changes between consecutive snapshots of a
// class: a node going up or down, a proxy changing VRRP state. Targets
// seen for the first time are logged once as added; vanished ones as removed.
type Transitions struct {
	Logger *zap.Logger
}

// Change is one target whose observed status differs from the previous
// snapshot. Empty From means the target is new; empty To means it is gone.
type Change struct {
	Address string
	From    string
	To      string
}

// Observe matches the OnSwap hook of Loop.
func (t *Transitions) Observe(prev, next *domain.Snapshot) {
	for _, c := range Diff(prev, next) {
		t.Logger.Info("target_state_changed",
			zap.String("class", string(next.Class)),
			zap.String("address", c.Address),
			zap.String("from", c.From),
			zap.String("to", c.To),
		)
	}
}

// Diff compares two snapshots of the same class. The first snapshot of a
// class (prev == nil) yields no changes.
func Diff(prev, next *domain.Snapshot) []Change {
	if prev == nil || next == nil {
		return nil
	}
	before := make(map[string]string, len(prev.Outcomes))
	for _, o := range prev.Outcomes {
		before[o.Target.Address] = status(o)
	}

	var out []Change
	seen := make(map[string]bool, len(next.Outcomes))
	for _, o := range next.Outcomes {
		addr := o.Target.Address
		if seen[addr] {
			continue
		}
		seen[addr] = true
		now := status(o)
		if was, ok := before[addr]; !ok || was != now {
			out = append(out, Change{Address: addr, From: before[addr], To: now})
		}
	}
	for _, o := range prev.Outcomes {
		addr := o.Target.Address
		if !seen[addr] {
			seen[addr] = true
			out = append(out, Change{Address: addr, From: before[addr]})
		}
	}
	return out
}

func status(o domain.ProbeOutcome) string {
	if o.Target.Class == domain.ClassProxy {
		return string(o.State)
	}
	if o.Up {
		return "UP"
	}
	return "DOWN"
}
