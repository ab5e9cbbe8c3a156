package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// PortProbe checks that a TCP port accepts connections. The connection is
// closed as soon as it is established; nothing is sent.
type PortProbe struct {
	Port    int
	Timeout time.Duration
}

func NewPortProbe(port int, timeout time.Duration) *PortProbe {
	return &PortProbe{Port: port, Timeout: timeout}
}

func (p *PortProbe) Name() string { return fmt.Sprintf("port %d", p.Port) }

func (p *PortProbe) Run(ctx context.Context, addr string) Result {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()
	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(p.Port)))
	if err != nil {
		if ctx.Err() != nil {
			return failed(start, "timeout")
		}
		return failed(start, err.Error())
	}
	lat := time.Since(start)
	_ = conn.Close()
	return Result{OK: true, Latency: lat}
}
