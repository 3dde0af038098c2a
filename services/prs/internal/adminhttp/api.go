// Package adminhttp serves read-only views of the lease table, the event
// journal, health checks and Prometheus metrics.
package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prsd/services/prs/internal/events"
	"prsd/services/prs/internal/lease"
)

const defaultRateLimit = 100

// LeaseReader is the read side of the lease table.
type LeaseReader interface {
	Snapshot() []lease.Lease
	Lookup(name string) (lease.Lease, bool)
	Range() (uint16, uint16)
	Timeout() time.Duration
}

// EventReader lists journalled lease events, newest first.
type EventReader interface {
	Recent(ctx context.Context, service string, limit int) ([]events.Record, error)
}

var _ LeaseReader = (*lease.Table)(nil)

// Config controls router construction. Journal and Gatherer are optional.
type Config struct {
	Leases         LeaseReader
	Journal        EventReader
	Ready          *atomic.Bool
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RateLimit      int
}

// API holds the handler dependencies.
type API struct {
	leases  LeaseReader
	journal EventReader
	ready   *atomic.Bool
	metrics http.Handler
	origins []string
	limit   int
}

func New(cfg Config) (*API, error) {
	if cfg.Leases == nil {
		return nil, errors.New("lease reader is required")
	}
	ready := cfg.Ready
	if ready == nil {
		ready = &atomic.Bool{}
		ready.Store(true)
	}
	metrics := promhttp.Handler()
	if cfg.Gatherer != nil {
		metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &API{
		leases:  cfg.Leases,
		journal: cfg.Journal,
		ready:   ready,
		metrics: metrics,
		origins: origins,
		limit:   limit,
	}, nil
}

// Routes constructs the chi router containing all admin endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(a.limit, time.Minute))
		r.Get("/leases", a.handleListLeases)
		r.Get("/leases/{service}", a.handleGetLease)
		r.Get("/events", a.handleListEvents)
	})

	return r
}
