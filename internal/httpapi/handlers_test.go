package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
	apimw "github.com/hamed0406/fleethealth/internal/httpapi/middleware"
	"github.com/hamed0406/fleethealth/internal/metrics"
	"github.com/hamed0406/fleethealth/internal/repo/memory"
	"github.com/hamed0406/fleethealth/internal/scheduler"
)

// ---- test helpers ----

type fakeSched struct {
	interval  time.Duration
	triggered []domain.TargetClass
	err       error
}

func (f *fakeSched) Status() []scheduler.ClassStatus {
	return []scheduler.ClassStatus{{Class: domain.ClassNode, State: scheduler.StateIdle, Cycles: 3}}
}

func (f *fakeSched) Interval(domain.TargetClass) time.Duration { return f.interval }

func (f *fakeSched) Trigger(c domain.TargetClass) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, c)
	return nil
}

type fakeStats struct{}

func (fakeStats) Stats() metrics.Stats { return metrics.Stats{Written: 7} }

var now0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, sched *fakeSched) (*memory.Store, *httptest.Server) {
	t.Helper()
	store := memory.New()
	srv := NewServer(zap.NewNop(), store, sched, fakeStats{})
	srv.now = func() time.Time { return now0 }

	h := srv.Router(Options{
		Keys: apimw.Keys{
			Public: []string{"pub_test"},
			Admin:  []string{"adm_test"},
		},
		// very high rate limits to avoid flakiness in tests
		RatePerMinute: 10_000,
		Burst:         10_000,
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return store, ts
}

func get(t *testing.T, url, key string, into any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func nodeSnapshot(ts time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		Class:     domain.ClassNode,
		Timestamp: ts,
		Outcomes: []domain.ProbeOutcome{
			{Target: domain.Target{Class: domain.ClassNode, Address: "10.0.0.1"}, Kind: domain.KindNode, Up: true, CheckedAt: ts},
			{Target: domain.Target{Class: domain.ClassNode, Address: "10.0.0.2"}, Kind: domain.KindNode, Detail: "ping: timeout; port 9103 skipped", CheckedAt: ts},
		},
	}
}

type nodesResp struct {
	Nodes []struct {
		Address string `json:"address"`
		Up      bool   `json:"up"`
		Detail  string `json:"detail"`
		Kind    string `json:"kind"`
	} `json:"nodes"`
	Timestamp  *time.Time `json:"timestamp"`
	AgeSeconds float64    `json:"age_seconds"`
	Stale      bool       `json:"stale"`
	Error      string     `json:"error"`
}

// ---- tests ----

func TestNodes_NotYetAvailable(t *testing.T) {
	_, ts := setup(t, &fakeSched{interval: 30 * time.Second})

	var body nodesResp
	if code := get(t, ts.URL+"/api/v1/nodes", "pub_test", &body); code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", code)
	}
	if body.Error == "" || body.Nodes == nil || len(body.Nodes) != 0 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestNodes_Snapshot(t *testing.T) {
	store, ts := setup(t, &fakeSched{interval: 30 * time.Second})
	store.Swap(nodeSnapshot(now0.Add(-10 * time.Second)))

	var body nodesResp
	if code := get(t, ts.URL+"/api/v1/nodes", "pub_test", &body); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if len(body.Nodes) != 2 || body.Nodes[0].Address != "10.0.0.1" || !body.Nodes[0].Up {
		t.Fatalf("unexpected nodes: %+v", body.Nodes)
	}
	if body.Nodes[1].Up || body.Nodes[1].Detail == "" || body.Nodes[1].Kind != "ping+port" {
		t.Fatalf("unexpected second node: %+v", body.Nodes[1])
	}
	if body.Stale || body.AgeSeconds != 10 {
		t.Fatalf("want fresh 10s old snapshot, got stale=%v age=%v", body.Stale, body.AgeSeconds)
	}
}

func TestNodes_StaleFlagStays200(t *testing.T) {
	store, ts := setup(t, &fakeSched{interval: 30 * time.Second})
	store.Swap(nodeSnapshot(now0.Add(-2 * time.Minute)))

	var body nodesResp
	if code := get(t, ts.URL+"/api/v1/nodes", "pub_test", &body); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if !body.Stale {
		t.Fatalf("snapshot older than 3 intervals should be stale")
	}
}

func TestProxies_State(t *testing.T) {
	store, ts := setup(t, &fakeSched{interval: 30 * time.Second})
	store.Swap(&domain.Snapshot{
		Class:     domain.ClassProxy,
		Timestamp: now0,
		Outcomes: []domain.ProbeOutcome{
			{Target: domain.Target{Class: domain.ClassProxy, Address: "ip1"}, State: domain.StateMaster, Up: true},
			{Target: domain.Target{Class: domain.ClassProxy, Address: "ip2"}, State: domain.StateUnreachable, Detail: "timeout"},
		},
	})

	var body struct {
		Proxies []struct {
			Address string `json:"address"`
			State   string `json:"state"`
		} `json:"proxies"`
	}
	if code := get(t, ts.URL+"/api/v1/proxies", "adm_test", &body); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if len(body.Proxies) != 2 || body.Proxies[0].State != "MASTER" || body.Proxies[1].State != "UNREACHABLE" {
		t.Fatalf("unexpected proxies: %+v", body.Proxies)
	}
}

func TestHealth_LegacyPayload(t *testing.T) {
	store, ts := setup(t, &fakeSched{interval: 30 * time.Second})

	var empty map[string]any
	if code := get(t, ts.URL+"/health", "", &empty); code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 before first cycle, got %d", code)
	}

	store.Swap(nodeSnapshot(now0))
	var body struct {
		HealthyNodes []string  `json:"healthy_nodes"`
		Timestamp    time.Time `json:"timestamp"`
	}
	if code := get(t, ts.URL+"/health", "", &body); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if len(body.HealthyNodes) != 1 || body.HealthyNodes[0] != "10.0.0.1" || !body.Timestamp.Equal(now0) {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestAPI_RequiresKey(t *testing.T) {
	_, ts := setup(t, &fakeSched{})
	if code := get(t, ts.URL+"/api/v1/nodes", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", code)
	}
	if code := get(t, ts.URL+"/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz must not require a key, got %d", code)
	}
}

func TestStatus(t *testing.T) {
	_, ts := setup(t, &fakeSched{})
	var body struct {
		Classes []scheduler.ClassStatus `json:"classes"`
		Metrics metrics.Stats           `json:"metrics"`
	}
	if code := get(t, ts.URL+"/api/v1/status", "pub_test", &body); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if len(body.Classes) != 1 || body.Classes[0].Cycles != 3 || body.Metrics.Written != 7 {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestTrigger(t *testing.T) {
	sched := &fakeSched{}
	_, ts := setup(t, sched)

	post := func(path, key string) int {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+path, nil)
		req.Header.Set("X-API-Key", key)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("/api/v1/cycles/proxies", "pub_test"); code != http.StatusForbidden {
		t.Fatalf("public key must not trigger, got %d", code)
	}
	if code := post("/api/v1/cycles/proxies", "adm_test"); code != http.StatusAccepted {
		t.Fatalf("want 202, got %d", code)
	}
	if len(sched.triggered) != 1 || sched.triggered[0] != domain.ClassProxy {
		t.Fatalf("unexpected triggers: %v", sched.triggered)
	}
	if code := post("/api/v1/cycles/bogus", "adm_test"); code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad class, got %d", code)
	}

	sched.err = scheduler.ErrBusy
	if code := post("/api/v1/cycles/node", "adm_test"); code != http.StatusConflict {
		t.Fatalf("want 409 when busy, got %d", code)
	}
}
