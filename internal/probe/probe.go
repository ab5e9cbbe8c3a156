package probe

import (
	"context"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// Set turns the probes for one target class into a ProbeOutcome.
type Set interface {
	Class() domain.TargetClass
	Run(ctx context.Context, t domain.Target) domain.ProbeOutcome

	// Synthetic is the outcome recorded for a target whose probes never
	// finished, e.g. when the batch deadline elapsed.
	Synthetic(t domain.Target, reason string) domain.ProbeOutcome
}
