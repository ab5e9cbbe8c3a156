// Package app wires configuration into the running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/httpapi"
	apimw "github.com/hamed0406/fleethealth/internal/httpapi/middleware"
	"github.com/hamed0406/fleethealth/internal/metrics"
	"github.com/hamed0406/fleethealth/internal/prober"
	"github.com/hamed0406/fleethealth/internal/probe"
	"github.com/hamed0406/fleethealth/internal/repo"
	"github.com/hamed0406/fleethealth/internal/repo/memory"
	"github.com/hamed0406/fleethealth/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Logger    *zap.Logger
	Config    *config.Config
	Store     *memory.Store
	Publisher *metrics.Publisher
	Scheduler *scheduler.Scheduler
	Handler   http.Handler

	sources *sources
}

// Sets lets callers replace the probe sets, e.g. in tests. Nil fields are
// built from config.
type Sets struct {
	Node  probe.Set
	Proxy probe.Set
}

// New builds every component but starts nothing.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, sets Sets) (*App, error) {
	a := &App{
		Logger:  logger,
		Config:  cfg,
		Store:   memory.New(),
		sources: newSources(logger),
	}

	a.Publisher = metrics.NewPublisher(logger, metricsSink(cfg.Metrics, logger), cfg.Metrics.QueueSize, cfg.Metrics.Timeout)

	nodeSrc, err := a.sources.build(ctx, domain.ClassNode, cfg.Nodes.Source)
	if err != nil {
		a.Close()
		return nil, err
	}
	proxySrc, err := a.sources.build(ctx, domain.ClassProxy, cfg.Proxies.Source)
	if err != nil {
		a.Close()
		return nil, err
	}

	if sets.Node == nil {
		sets.Node = NodeSet(cfg.Nodes)
	}
	if sets.Proxy == nil {
		if sets.Proxy, err = ProxySet(cfg.Proxies); err != nil {
			a.Close()
			return nil, fmt.Errorf("proxy probe: %w", err)
		}
	}

	transitions := &scheduler.Transitions{Logger: logger}
	nodes := a.loop(domain.ClassNode, nodeSrc, sets.Node, cfg.Nodes.CycleConfig, nodeProbeTimeout(cfg.Nodes))
	nodes.OnSwap = transitions.Observe
	proxies := a.loop(domain.ClassProxy, proxySrc, sets.Proxy, cfg.Proxies.CycleConfig, proxyProbeTimeout(cfg.Proxies))
	proxies.OnSwap = transitions.Observe
	a.Scheduler = scheduler.New(nodes, proxies)

	srv := httpapi.NewServer(logger, a.Store, a.Scheduler, a.Publisher)
	a.Handler = srv.Router(httpapi.Options{
		Keys:           apimw.Keys{Public: cfg.API.PublicKeys, Admin: cfg.API.AdminKeys},
		AllowedOrigins: cfg.API.AllowedOrigins,
		RatePerMinute:  cfg.API.RatePerMinute,
		Burst:          cfg.API.Burst,
	})
	return a, nil
}

func (a *App) loop(class domain.TargetClass, src repo.TargetSource, set probe.Set, cc config.CycleConfig, probeTimeout time.Duration) *scheduler.Loop {
	p := prober.New(a.Logger, cc.Concurrency, probeTimeout, cc.BatchDeadline)
	return scheduler.NewLoop(a.Logger, class, src, set, p, a.Store, a.Publisher, cc.Interval)
}

func metricsSink(cfg config.MetricsConfig, logger *zap.Logger) metrics.Sink {
	if !cfg.Enabled || len(cfg.Endpoints) == 0 {
		return metrics.LogSink{Logger: logger}
	}
	var m metrics.Multi
	for _, ep := range cfg.Endpoints {
		if s := metrics.NewInflux(ep, cfg.Database, cfg.Timeout); s != nil {
			m = append(m, s)
		}
	}
	switch len(m) {
	case 0:
		return metrics.LogSink{Logger: logger}
	case 1:
		return m[0]
	}
	return m
}

// Run serves the API and runs the scheduler and metrics worker until ctx is
// cancelled or the listener fails. Shutdown is graceful for all three.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{
		Addr:              a.Config.API.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		a.Publisher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info("api_listen", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err := g.Wait()
	a.Logger.Info("app_stopped", zap.Error(err))
	return err
}

func (a *App) Close() {
	if a.sources != nil {
		a.sources.Close()
	}
}
