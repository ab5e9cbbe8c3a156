// Package consul reads target lists from Consul: either a KV key holding a
// newline separated list, or the passing instances of a catalog service.
package consul

import (
	"context"
	"errors"
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
)

// ErrKeyMissing is returned when the configured KV key does not exist.
var ErrKeyMissing = errors.New("consul key not found")

type Source struct {
	cli     *consulapi.Client
	class   domain.TargetClass
	key     string
	service string
}

// New builds a source for class. Exactly one of key and service is expected;
// key wins when both are set.
func New(addr string, class domain.TargetClass, key, service string) (*Source, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Source{cli: cli, class: class, key: key, service: service}, nil
}

func (s *Source) Targets(ctx context.Context) (domain.TargetList, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if s.key != "" {
		return s.fromKV(q)
	}
	return s.fromCatalog(q)
}

func (s *Source) fromKV(q *consulapi.QueryOptions) (domain.TargetList, error) {
	kv, _, err := s.cli.KV().Get(s.key, q)
	if err != nil {
		return nil, fmt.Errorf("consul kv get %s: %w", s.key, err)
	}
	if kv == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyMissing, s.key)
	}
	var addrs []string
	for _, line := range strings.Split(string(kv.Value), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	return domain.NewTargetList(s.class, addrs), nil
}

func (s *Source) fromCatalog(q *consulapi.QueryOptions) (domain.TargetList, error) {
	entries, _, err := s.cli.Health().Service(s.service, "", true, q)
	if err != nil {
		return nil, fmt.Errorf("consul health %s: %w", s.service, err)
	}
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.Service != nil && e.Service.Address != "":
			addrs = append(addrs, e.Service.Address)
		case e.Node != nil && e.Node.Address != "":
			addrs = append(addrs, e.Node.Address)
		}
	}
	return domain.NewTargetList(s.class, addrs), nil
}

var _ repo.TargetSource = (*Source)(nil)
