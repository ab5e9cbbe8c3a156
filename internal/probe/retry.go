package probe

import (
	"context"
	"fmt"
	"time"
)

// RetryProbe reruns Inner until it succeeds, Attempts is exhausted or ctx
// ends. The backoff wait is cut short by ctx.
type RetryProbe struct {
	Inner    Probe
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProbe) Name() string { return r.Inner.Name() }

func (r *RetryProbe) Run(ctx context.Context, addr string) Result {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		last  Result
		total time.Duration
		tried int
	)
	for i := 0; i < attempts; i++ {
		last = r.Inner.Run(ctx, addr)
		total += last.Latency
		tried++
		if last.OK {
			return last
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			i = attempts
		case <-t.C:
		}
	}
	if tried > 1 {
		last.Detail = fmt.Sprintf("%s (after %d attempts)", last.Detail, tried)
	}
	last.Latency = total
	return last
}
