package handler

import (
	"net/http"
	"time"

	"transit-map/internal/display"
)

type HealthHandler struct {
	sim Simulation
}

func NewHealthHandler(s Simulation) *HealthHandler {
	return &HealthHandler{sim: s}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	ServerTime time.Time `json:"serverTime"`
}

// Readyz reports ready only when the dataset loaded.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	snap := h.sim.Snapshot()
	resp := ReadyResponse{
		Ready:      h.sim.Available(),
		State:      snap.State.String(),
		ServerTime: time.Now(),
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
		resp.State = "unavailable"
		resp.Error = display.MsgLoadFailed
	}
	respondJSON(w, status, resp)
}
