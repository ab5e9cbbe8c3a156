package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// ErrNotYetAvailable is returned by SnapshotStore.Get before the first
// successful cycle for a class.
var ErrNotYetAvailable = errors.New("snapshot not yet available")

// Ports. Sources and stores are swappable adapters.

// TargetSource yields the current target list for one class. It is read once
// per cycle; an error or an empty list aborts that cycle.
type TargetSource interface {
	Targets(ctx context.Context) (domain.TargetList, error)
}

// SnapshotStore holds the latest snapshot per class. Get never blocks on a
// Swap and never observes a partially written snapshot.
type SnapshotStore interface {
	Get(class domain.TargetClass) (*domain.Snapshot, error)
	Swap(s *domain.Snapshot)
}

// SourceFunc adapts a function to TargetSource.
type SourceFunc func(ctx context.Context) (domain.TargetList, error)

func (f SourceFunc) Targets(ctx context.Context) (domain.TargetList, error) { return f(ctx) }
