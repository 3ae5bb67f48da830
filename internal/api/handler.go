package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

// Handler is the HTTP handler for all /api/v1/* endpoints plus /metrics
// and /healthz. It reads alert state from the store and returns JSON.
type Handler struct {
	store      *alerts.Store
	dispatcher *notify.Dispatcher
	started    time.Time
	mux        *http.ServeMux
}

// New creates a Handler wired to the given store and registers all routes.
func New(st *alerts.Store, d *notify.Dispatcher) http.Handler {
	h := &Handler{store: st, dispatcher: d, started: time.Now(), mux: http.NewServeMux()}

	h.mux.HandleFunc("/healthz", h.healthz)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.Handle("/metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// healthz returns 200 while the process is serving. Notification trouble
// shows up in the stats payload, not here; a degraded dispatcher is still
// a live engine.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// alerts returns GET /api/v1/alerts: the currently active alert set.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	active := h.store.Active()
	out := make([]alerts.Alert, 0, len(active))
	out = append(out, active...)
	jsonResp(w, http.StatusOK, AlertsResponse{Alerts: out, Count: len(out)})
}

// stats returns GET /api/v1/stats: active counts, uptime, and whether the
// notification dispatcher is fully degraded.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, StatsResponse{
		Stats:            h.store.Stats(),
		NotifierDegraded: h.dispatcher.Degraded(),
		UptimeSeconds:    int64(time.Since(h.started).Seconds()),
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
