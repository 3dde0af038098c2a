package adminhttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"prsd/services/prs/internal/events"
	"prsd/services/prs/internal/lease"
)

// LeaseList is the body of GET /v1/leases.
type LeaseList struct {
	StartPort      uint16        `json:"start_port" yaml:"start_port"`
	EndPort        uint16        `json:"end_port" yaml:"end_port"`
	TimeoutSeconds int64         `json:"timeout_seconds" yaml:"timeout_seconds"`
	Active         int           `json:"active" yaml:"active"`
	Leases         []lease.Lease `json:"leases" yaml:"leases"`
}

// EventList is the body of GET /v1/events.
type EventList struct {
	Events []events.Record `json:"events" yaml:"events"`
}

func (a *API) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	http.Error(w, "udp listener not ready", http.StatusServiceUnavailable)
}

func (a *API) handleListLeases(w http.ResponseWriter, _ *http.Request) {
	start, end := a.leases.Range()
	snapshot := a.leases.Snapshot()

	active := 0
	for _, l := range snapshot {
		if !l.Available {
			active++
		}
	}

	respondJSON(w, http.StatusOK, LeaseList{
		StartPort:      start,
		EndPort:        end,
		TimeoutSeconds: int64(a.leases.Timeout().Seconds()),
		Active:         active,
		Leases:         snapshot,
	})
}

func (a *API) handleGetLease(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	l, ok := a.leases.Lookup(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Errorf("service %q holds no lease", name))
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		respondError(w, http.StatusNotFound, errors.New("event journal is disabled"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	recs, err := a.journal.Recent(ctx, r.URL.Query().Get("service"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []events.Record{}
	}
	respondJSON(w, http.StatusOK, EventList{Events: recs})
}
