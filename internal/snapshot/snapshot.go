// Package snapshot turns one cycle's outcomes into an immutable Snapshot.
package snapshot

import (
	"time"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// Build copies outcomes into a new snapshot stamped with ts. It never fails:
// an empty input yields an empty, valid snapshot, and duplicates are kept.
func Build(class domain.TargetClass, outcomes []domain.ProbeOutcome, ts time.Time) *domain.Snapshot {
	cp := make([]domain.ProbeOutcome, len(outcomes))
	copy(cp, outcomes)
	return &domain.Snapshot{
		Class:     class,
		Timestamp: ts.UTC(),
		Outcomes:  cp,
	}
}
