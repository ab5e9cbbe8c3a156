package probe

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// ExecPingProbe shells out to the system ping binary. It exists for hosts
// where neither ICMP socket flavour is permitted.
type ExecPingProbe struct {
	Timeout time.Duration
	Binary  string
}

func NewExecPingProbe(timeout time.Duration) *ExecPingProbe {
	return &ExecPingProbe{Timeout: timeout, Binary: "ping"}
}

func (p *ExecPingProbe) Name() string { return "ping" }

var pingRttRe = regexp.MustCompile(`= ([0-9.]+)/`)

func (p *ExecPingProbe) Run(ctx context.Context, addr string) Result {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()
	start := time.Now()

	wait := int(math.Ceil(p.Timeout.Seconds()))
	if wait < 1 {
		wait = 1
	}
	bin := p.Binary
	if bin == "" {
		bin = "ping"
	}
	// CommandContext kills the child when ctx ends.
	cmd := exec.CommandContext(ctx, bin, "-c", "1", "-W", strconv.Itoa(wait), addr)
	cmd.WaitDelay = 500 * time.Millisecond
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return failed(start, "timeout")
		}
		return failed(start, fmt.Sprintf("%s: %v", bin, err))
	}

	lat := time.Since(start)
	if m := pingRttRe.FindSubmatch(out); len(m) == 2 {
		if ms, perr := strconv.ParseFloat(string(m[1]), 64); perr == nil {
			lat = time.Duration(ms * float64(time.Millisecond))
		}
	}
	return Result{OK: true, Latency: lat}
}
