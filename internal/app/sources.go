package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
	"github.com/hamed0406/fleethealth/internal/repo/consul"
	"github.com/hamed0406/fleethealth/internal/repo/file"
	"github.com/hamed0406/fleethealth/internal/repo/memory"
	pg "github.com/hamed0406/fleethealth/internal/repo/postgres"
)

// sources builds target sources and shares one pgx pool per DSN.
type sources struct {
	logger *zap.Logger
	pg     map[string]*pg.Store
}

func newSources(logger *zap.Logger) *sources {
	return &sources{logger: logger, pg: map[string]*pg.Store{}}
}

func (s *sources) build(ctx context.Context, class domain.TargetClass, cfg config.SourceConfig) (repo.TargetSource, error) {
	switch cfg.Kind {
	case config.SourceStatic:
		return memory.NewStatic(class, cfg.Addresses), nil
	case config.SourceFile:
		return file.NewList(class, cfg.Path), nil
	case config.SourceInventory:
		return file.NewInventory(class, cfg.Path, cfg.Group), nil
	case config.SourcePostgres:
		st, ok := s.pg[cfg.DSN]
		if !ok {
			var err error
			st, err = pg.New(ctx, cfg.DSN, s.logger)
			if err != nil {
				return nil, fmt.Errorf("%s source: postgres: %w", class, err)
			}
			s.pg[cfg.DSN] = st
		}
		return st.Source(class), nil
	case config.SourceConsul:
		src, err := consul.New(cfg.ConsulAddr, class, cfg.ConsulKey, cfg.ConsulService)
		if err != nil {
			return nil, fmt.Errorf("%s source: %w", class, err)
		}
		return src, nil
	}
	return nil, fmt.Errorf("%s source: unknown kind %q", class, cfg.Kind)
}

func (s *sources) Close() {
	for _, st := range s.pg {
		st.Close()
	}
}

// BuildSource is the one-off form used by preflight. The returned close
// function releases any pool it opened.
func BuildSource(ctx context.Context, logger *zap.Logger, class domain.TargetClass, cfg config.SourceConfig) (repo.TargetSource, func(), error) {
	s := newSources(logger)
	src, err := s.build(ctx, class, cfg)
	if err != nil {
		s.Close()
		return nil, func() {}, err
	}
	return src, s.Close, nil
}
