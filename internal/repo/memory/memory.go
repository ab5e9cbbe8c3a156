package memory

import (
	"context"
	"sync/atomic"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
)

// Store keeps the latest snapshot per class behind atomic pointers, so
// readers are lock-free and see either the old or the new snapshot.
type Store struct {
	node  atomic.Pointer[domain.Snapshot]
	proxy atomic.Pointer[domain.Snapshot]
}

func New() *Store {
	return &Store{}
}

func (m *Store) slot(c domain.TargetClass) *atomic.Pointer[domain.Snapshot] {
	switch c {
	case domain.ClassNode:
		return &m.node
	case domain.ClassProxy:
		return &m.proxy
	}
	return nil
}

func (m *Store) Get(c domain.TargetClass) (*domain.Snapshot, error) {
	p := m.slot(c)
	if p == nil {
		return nil, repo.ErrNotYetAvailable
	}
	s := p.Load()
	if s == nil {
		return nil, repo.ErrNotYetAvailable
	}
	return s, nil
}

// Swap publishes s as the current snapshot of its class. Unknown classes are
// ignored.
func (m *Store) Swap(s *domain.Snapshot) {
	if s == nil {
		return
	}
	if p := m.slot(s.Class); p != nil {
		p.Store(s)
	}
}

// Static is a fixed target list, e.g. from config or NODE_IPS.
type Static struct {
	list domain.TargetList
}

func NewStatic(class domain.TargetClass, addrs []string) *Static {
	return &Static{list: domain.NewTargetList(class, addrs)}
}

// Targets returns a fresh copy each call; callers may not mutate the source.
func (s *Static) Targets(ctx context.Context) (domain.TargetList, error) {
	out := make(domain.TargetList, len(s.list))
	copy(out, s.list)
	return out, nil
}

var (
	_ repo.SnapshotStore = (*Store)(nil)
	_ repo.TargetSource  = (*Static)(nil)
)
