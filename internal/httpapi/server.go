package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
	apimw "github.com/hamed0406/fleethealth/internal/httpapi/middleware"
	"github.com/hamed0406/fleethealth/internal/metrics"
	"github.com/hamed0406/fleethealth/internal/repo"
	"github.com/hamed0406/fleethealth/internal/scheduler"
)

// staleAfter is how many intervals a snapshot may age before it is
// flagged stale.
const staleAfter = 3

// Scheduler is what the API needs from *scheduler.Scheduler.
type Scheduler interface {
	Status() []scheduler.ClassStatus
	Interval(class domain.TargetClass) time.Duration
	Trigger(class domain.TargetClass) error
}

// MetricsStats is satisfied by *metrics.Publisher.
type MetricsStats interface {
	Stats() metrics.Stats
}

type Server struct {
	Logger  *zap.Logger
	Store   repo.SnapshotStore
	Sched   Scheduler
	Metrics MetricsStats

	now func() time.Time
}

func NewServer(l *zap.Logger, store repo.SnapshotStore, sched Scheduler, m MetricsStats) *Server {
	return &Server{Logger: l, Store: store, Sched: sched, Metrics: m, now: time.Now}
}

// Options configures the middleware stack of Router.
type Options struct {
	Keys           apimw.Keys
	AllowedOrigins []string
	RatePerMinute  int
	Burst          int
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	if len(opts.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.RatePerMinute, opts.Burst))

		r.Get("/health", s.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(apimw.RequireAny(opts.Keys))
			r.Get("/nodes", s.handleClass(domain.ClassNode, "nodes"))
			r.Get("/proxies", s.handleClass(domain.ClassProxy, "proxies"))
			r.Get("/status", s.handleStatus)

			r.With(apimw.RequireAdmin(opts.Keys)).Post("/cycles/{class}", s.handleTrigger)
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// outcomeJSON flattens the target address into the outcome payload.
type outcomeJSON struct {
	Address string `json:"address"`
	domain.ProbeOutcome
	DurationMS int64 `json:"duration_ms"`
}

func outcomesJSON(snap *domain.Snapshot) []outcomeJSON {
	out := make([]outcomeJSON, 0, snap.Len())
	if snap == nil {
		return out
	}
	for _, o := range snap.Outcomes {
		out = append(out, outcomeJSON{Address: o.Address(), ProbeOutcome: o, DurationMS: o.Duration.Milliseconds()})
	}
	return out
}

func (s *Server) handleClass(class domain.TargetClass, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.Store.Get(class)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repo.ErrNotYetAvailable) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]any{key: []outcomeJSON{}, "error": err.Error()})
			return
		}

		age := s.now().Sub(snap.Timestamp)
		writeJSON(w, http.StatusOK, map[string]any{
			key:           outcomesJSON(snap),
			"timestamp":   snap.Timestamp,
			"age_seconds": math.Round(age.Seconds()*10) / 10,
			"stale":       s.stale(class, age),
		})
	}
}

func (s *Server) stale(class domain.TargetClass, age time.Duration) bool {
	if s.Sched == nil {
		return false
	}
	iv := s.Sched.Interval(class)
	return iv > 0 && age > staleAfter*iv
}

// handleHealth keeps the legacy payload: the healthy node addresses.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Store.Get(domain.ClassNode)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"healthy_nodes": []string{},
			"timestamp":     nil,
			"error":         err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy_nodes": snap.Healthy(),
		"timestamp":     snap.Timestamp,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"classes": []scheduler.ClassStatus{}}
	if s.Sched != nil {
		body["classes"] = s.Sched.Status()
	}
	if s.Metrics != nil {
		body["metrics"] = s.Metrics.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	class, err := domain.ParseClass(chi.URLParam(r, "class"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	switch err := s.Sched.Trigger(class); {
	case err == nil:
		s.Logger.Info("cycle_trigger_requested", zap.String("class", string(class)))
		writeJSON(w, http.StatusAccepted, map[string]any{"class": class, "triggered": true})
	case errors.Is(err, scheduler.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"class": class, "error": err.Error()})
	case errors.Is(err, scheduler.ErrUnknownClass):
		writeJSON(w, http.StatusNotFound, map[string]any{"class": class, "error": err.Error()})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"class": class, "error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
