package probe

import (
	"context"
	"time"
)

// Result is the outcome of a single protocol check. Failures are values:
// OK=false with a Detail, never an error.
type Result struct {
	OK      bool          `json:"ok"`
	Detail  string        `json:"detail,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Probe performs one check against one address. Implementations bound
// themselves by their own timeout and by ctx, whichever is sooner.
type Probe interface {
	Name() string
	Run(ctx context.Context, addr string) Result
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func failed(start time.Time, detail string) Result {
	return Result{OK: false, Detail: detail, Latency: time.Since(start)}
}
