package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/app"
	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/probe"
	pg "github.com/hamed0406/fleethealth/internal/repo/postgres"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("FLEETHEALTH_CONFIG"), "path to YAML config (optional)")
	initSchema := flag.Bool("init-schema", false, "create fleet_targets in every postgres source before reading it")
	flag.Parse()

	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	ok("configuration valid")

	if len(cfg.API.AdminKeys) == 0 {
		warn("no admin API keys; POST /api/v1/cycles/{class} is open")
	}
	if len(cfg.API.PublicKeys) == 0 && len(cfg.API.AdminKeys) == 0 {
		warn("no API keys; read routes are open")
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		warn("allowed_origins empty; CORS allows every origin")
	}
	if !cfg.Metrics.Enabled {
		warn("metrics disabled; points are only logged")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *initSchema {
		dsns, err := ensureSchemas(ctx, cfg)
		if err != nil {
			fail("init schema: " + err.Error())
		}
		for _, d := range dsns {
			ok("fleet_targets schema ready on " + d)
		}
	}

	for _, c := range []struct {
		class domain.TargetClass
		src   config.SourceConfig
	}{
		{domain.ClassNode, cfg.Nodes.Source},
		{domain.ClassProxy, cfg.Proxies.Source},
	} {
		src, closeFn, err := app.BuildSource(ctx, zap.NewNop(), c.class, c.src)
		if err != nil {
			fail(fmt.Sprintf("%s source (%s): %v", c.class, c.src.Kind, err))
			continue
		}
		list, err := src.Targets(ctx)
		closeFn()
		switch {
		case err != nil:
			fail(fmt.Sprintf("%s source (%s): %v", c.class, c.src.Kind, err))
		case len(list) == 0:
			warn(fmt.Sprintf("%s source (%s) returned no targets; cycles will be skipped", c.class, c.src.Kind))
		default:
			ok(fmt.Sprintf("%s source (%s): %d targets", c.class, c.src.Kind, len(list)))
		}
	}

	if _, err := probe.NewSSHRunner(cfg.Proxies.Remote); err != nil {
		fail("proxy remote-state probe: " + err.Error())
	} else {
		ok("ssh key and known_hosts loaded")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}

// ensureSchemas applies the target schema once per distinct postgres DSN used
// by a source and returns the redacted DSNs it prepared.
func ensureSchemas(ctx context.Context, cfg *config.Config) ([]string, error) {
	var done []string
	seen := map[string]bool{}
	for _, src := range []config.SourceConfig{cfg.Nodes.Source, cfg.Proxies.Source} {
		if src.Kind != config.SourcePostgres || seen[src.DSN] {
			continue
		}
		seen[src.DSN] = true

		st, err := pg.New(ctx, src.DSN, zap.NewNop())
		if err != nil {
			return done, err
		}
		err = st.EnsureSchema(ctx)
		st.Close()
		if err != nil {
			return done, err
		}
		done = append(done, redactDSN(src.DSN))
	}
	return done, nil
}

// redactDSN hides the password of a URL-form DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
