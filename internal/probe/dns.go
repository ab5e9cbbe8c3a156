package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// DNS failure classes carried in probe details.
const (
	DNSNXDomain     = "NXDOMAIN"
	DNSNoARecord    = "NO_A_RECORD"
	DNSServfailOrTO = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
)

// resolveIPv4 returns addr itself when it is an IPv4 literal, otherwise the
// first A record. Errors carry one of the DNS classes above.
func resolveIPv4(ctx context.Context, r *net.Resolver, addr string) (net.IP, error) {
	host := strings.TrimSpace(addr)
	if host == "" || strings.Contains(host, "://") {
		return nil, fmt.Errorf("dns=%s", DNSInvalidName)
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("ipv6 address %s not supported", host)
	}
	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns=%s: %w", classifyDNSError(err), err)
	}
	for _, ip := range ips {
		if v4 := ip.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("dns=%s", DNSNoARecord)
}

func classifyDNSError(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) {
		if de.IsNotFound {
			return DNSNXDomain
		}
	}
	return DNSServfailOrTO
}
