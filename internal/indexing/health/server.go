package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mount registers /health, /health/detailed and /metrics on r.
func Mount(r chi.Router, monitor *Monitor) {
	h := &handlers{monitor: monitor}
	r.Get("/health", h.handleHealth)
	r.Get("/health/detailed", h.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())
}

type handlers struct {
	monitor *Monitor
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.CheckHealth(r.Context())

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (h *handlers) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
