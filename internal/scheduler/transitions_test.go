package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/fleethealth/internal/domain"
)

func nodeSnap(states map[string]bool, order ...string) *domain.Snapshot {
	s := &domain.Snapshot{Class: domain.ClassNode}
	for _, a := range order {
		s.Outcomes = append(s.Outcomes, domain.ProbeOutcome{
			Target: domain.Target{Class: domain.ClassNode, Address: a},
			Up:     states[a],
		})
	}
	return s
}

func TestDiff(t *testing.T) {
	prev := nodeSnap(map[string]bool{"a": true, "b": true, "c": false}, "a", "b", "c")
	next := nodeSnap(map[string]bool{"a": true, "b": false, "d": true}, "a", "b", "d")

	got := Diff(prev, next)
	assert.Equal(t, []Change{
		{Address: "b", From: "UP", To: "DOWN"},
		{Address: "d", From: "", To: "UP"},
		{Address: "c", From: "DOWN", To: ""},
	}, got)

	assert.Nil(t, Diff(nil, next))
}

func TestDiff_ProxyState(t *testing.T) {
	mk := func(s domain.ProxyState) *domain.Snapshot {
		return &domain.Snapshot{Class: domain.ClassProxy, Outcomes: []domain.ProbeOutcome{
			{Target: domain.Target{Class: domain.ClassProxy, Address: "lb1"}, State: s},
		}}
	}
	assert.Empty(t, Diff(mk(domain.StateMaster), mk(domain.StateMaster)))
	assert.Equal(t, []Change{{Address: "lb1", From: "MASTER", To: "BACKUP"}}, Diff(mk(domain.StateMaster), mk(domain.StateBackup)))
}

func TestTransitions_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := &Transitions{Logger: zap.New(core)}

	prev := nodeSnap(map[string]bool{"a": true}, "a")
	next := nodeSnap(map[string]bool{"a": false}, "a")
	tr.Observe(prev, next)

	entries := logs.FilterMessage("target_state_changed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "DOWN", entries[0].ContextMap()["to"])
	}
}
