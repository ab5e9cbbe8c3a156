package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

var echoPayload = []byte("fleethealth")

// ICMPProbe sends a single echo request and waits for the matching reply.
//
// Unprivileged mode uses a datagram ICMP socket (Linux net.ipv4.ping_group_range
// must include the process group); Privileged uses a raw socket and needs
// CAP_NET_RAW.
type ICMPProbe struct {
	Timeout    time.Duration
	Privileged bool
	Resolver   *net.Resolver

	seq atomic.Uint32
}

func NewICMPProbe(timeout time.Duration, privileged bool) *ICMPProbe {
	return &ICMPProbe{Timeout: timeout, Privileged: privileged}
}

func (p *ICMPProbe) Name() string { return "ping" }

func (p *ICMPProbe) Run(ctx context.Context, addr string) Result {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()
	start := time.Now()

	ip, err := resolveIPv4(ctx, p.Resolver, addr)
	if err != nil {
		return failed(start, err.Error())
	}

	network := "udp4"
	if p.Privileged {
		network = "ip4:icmp"
	}
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return failed(start, fmt.Sprintf("listen %s: %v", network, err))
	}
	defer conn.Close()

	// Unblocks ReadFrom as soon as ctx ends, deadline or cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	id := os.Getpid() & 0xffff
	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return failed(start, fmt.Sprintf("marshal echo: %v", err))
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.Privileged {
		dst = &net.IPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return failed(start, fmt.Sprintf("send echo: %v", err))
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
				return failed(start, "timeout")
			}
			return failed(start, fmt.Sprintf("read reply: %v", err))
		}
		if !peerIP(peer).Equal(ip) {
			continue
		}
		rm, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), rb[:n])
		if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// The kernel rewrites the ID of datagram sockets, so only raw
		// sockets can match on it.
		if p.Privileged && echo.ID != id {
			continue
		}
		return Result{OK: true, Latency: time.Since(start)}
	}
}

func peerIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
