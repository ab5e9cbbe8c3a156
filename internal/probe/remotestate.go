package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// StateProbe reports the VRRP state of one host.
type StateProbe interface {
	Run(ctx context.Context, addr string) (domain.ProxyState, string)
}

// RemoteStateProbe runs Command through Runner and maps the answer onto the
// fixed ProxyState vocabulary:
//
//	known token            -> that state
//	unknown token / exit!=0 -> UNKNOWN
//	no channel / timeout    -> UNREACHABLE
type RemoteStateProbe struct {
	Runner  CommandRunner
	Command string
	Timeout time.Duration
}

func (p *RemoteStateProbe) Run(ctx context.Context, addr string) (domain.ProxyState, string) {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.Runner.Run(ctx, addr, p.Command)
	switch {
	case err == nil:
		state := domain.ParseProxyState(string(out))
		if state == domain.StateUnknown {
			return state, fmt.Sprintf("unrecognised state %q", truncate(strings.TrimSpace(string(out)), 32))
		}
		return state, ""
	case errors.Is(err, ErrChannel), ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.StateUnreachable, "timeout"
		}
		return domain.StateUnreachable, err.Error()
	default:
		return domain.StateUnknown, err.Error()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
