package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/metrics"
	"github.com/hamed0406/fleethealth/internal/probe"
)

type upSet struct{ class domain.TargetClass }

func (s upSet) Class() domain.TargetClass { return s.class }

func (s upSet) Run(_ context.Context, t domain.Target) domain.ProbeOutcome {
	o := domain.ProbeOutcome{Target: t, Up: true, CheckedAt: time.Now().UTC()}
	if s.class == domain.ClassProxy {
		o.State = domain.StateBackup
	}
	return o
}

func (s upSet) Synthetic(t domain.Target, reason string) domain.ProbeOutcome {
	return domain.ProbeOutcome{Target: t, Detail: reason}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Nodes.Source = config.SourceConfig{Kind: config.SourceStatic, Addresses: []string{"10.0.0.1", "10.0.0.2"}}
	cfg.Proxies.Source = config.SourceConfig{Kind: config.SourceStatic, Addresses: []string{"10.0.1.1"}}
	cfg.Nodes.Interval = time.Hour
	cfg.Proxies.Interval = time.Hour
	cfg.Metrics.Enabled = false
	return &cfg
}

func TestApp_EndToEndWithFakeSets(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop(), Sets{
		Node:  upSet{domain.ClassNode},
		Proxy: upSet{domain.ClassProxy},
	})
	require.NoError(t, err)
	defer a.Close()
	_, isLog := any(a.Publisher.Sink).(metrics.LogSink)
	assert.True(t, isLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Scheduler.Run(ctx)

	ts := httptest.NewServer(a.Handler)
	defer ts.Close()

	var body struct {
		HealthyNodes []string `json:"healthy_nodes"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, body.HealthyNodes)

	require.Eventually(t, func() bool {
		_, err := a.Store.Get(domain.ClassProxy)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_BadSourceFails(t *testing.T) {
	cfg := testConfig()
	cfg.Nodes.Source.Kind = "carrier-pigeon"
	_, err := New(context.Background(), cfg, zap.NewNop(), Sets{Node: upSet{domain.ClassNode}, Proxy: upSet{domain.ClassProxy}})
	assert.Error(t, err)
}

func TestApp_MissingSSHKeyFails(t *testing.T) {
	cfg := testConfig()
	cfg.Proxies.Remote.KeyFile = filepath.Join(t.TempDir(), "missing")
	_, err := New(context.Background(), cfg, zap.NewNop(), Sets{Node: upSet{domain.ClassNode}})
	assert.Error(t, err)
}

func TestBuildSource_Kinds(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "nodes.list")
	require.NoError(t, os.WriteFile(list, []byte("10.0.0.1\n"), 0o644))
	inv := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(inv, []byte("[lb]\nlb1 ansible_host=10.0.1.1\n"), 0o644))

	cases := []struct {
		cfg  config.SourceConfig
		want []string
	}{
		{config.SourceConfig{Kind: config.SourceStatic, Addresses: []string{"a", "b"}}, []string{"a", "b"}},
		{config.SourceConfig{Kind: config.SourceFile, Path: list}, []string{"10.0.0.1"}},
		{config.SourceConfig{Kind: config.SourceInventory, Path: inv, Group: "lb"}, []string{"10.0.1.1"}},
	}
	for _, c := range cases {
		src, closeFn, err := BuildSource(context.Background(), zap.NewNop(), domain.ClassNode, c.cfg)
		require.NoError(t, err, c.cfg.Kind)
		got, err := src.Targets(context.Background())
		require.NoError(t, err, c.cfg.Kind)
		assert.Equal(t, c.want, got.Addresses(), c.cfg.Kind)
		closeFn()
	}

	_, _, err := BuildSource(context.Background(), zap.NewNop(), domain.ClassNode, config.SourceConfig{Kind: config.SourceConsul, ConsulAddr: "127.0.0.1:1", ConsulKey: "k"})
	require.NoError(t, err)
}

func TestNodeSet_FromConfig(t *testing.T) {
	cfg := config.Default().Nodes
	cfg.Ping.Mode = config.PingExec
	cfg.Ping.Attempts = 3

	set := NodeSet(cfg).(*probe.NodeSet)
	retry, ok := set.Ping.(*probe.RetryProbe)
	require.True(t, ok)
	assert.Equal(t, 3, retry.Attempts)
	_, isExec := retry.Inner.(*probe.ExecPingProbe)
	assert.True(t, isExec)
	assert.Equal(t, "port 9103", set.Port.Name())

	// 3 pings at 2s, two 200ms backoffs, 2s port, 500ms slack
	assert.Equal(t, 8900*time.Millisecond, nodeProbeTimeout(cfg))
}

func TestMetricsSink(t *testing.T) {
	cfg := config.Default().Metrics
	_, single := metricsSink(cfg, zap.NewNop()).(*metrics.Influx)
	assert.True(t, single)

	cfg.Endpoints = append(cfg.Endpoints, "http://influx-b:8086")
	m, multi := metricsSink(cfg, zap.NewNop()).(metrics.Multi)
	assert.True(t, multi)
	assert.Len(t, m, 2)
}
