package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"transit-map/internal/display"
	"transit-map/internal/render"
	"transit-map/internal/sim"
)

// Simulation is the part of sim.Manager the handlers use.
type Simulation interface {
	Available() bool
	LoadError() error
	Routes() []display.RouteOption
	Snapshot() display.Snapshot
	Select(ctx context.Context, routeID string) error
	Subscribe(fn func(display.Snapshot))
}

type HTTPHandler struct {
	sim      Simulation
	viewport render.Viewport
}

func NewHTTPHandler(s Simulation, defaultViewport render.Viewport) *HTTPHandler {
	return &HTTPHandler{sim: s, viewport: defaultViewport}
}

type RoutesResponse struct {
	Routes []display.RouteOption `json:"routes"`
	Error  string                `json:"error,omitempty"`
}

func (h *HTTPHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	resp := RoutesResponse{Routes: h.sim.Routes()}
	if !h.sim.Available() {
		resp.Error = display.MsgLoadFailed
	}
	respondJSON(w, http.StatusOK, resp)
}

type SelectionResponse struct {
	Seq       uint64               `json:"seq"`
	State     string               `json:"state"`
	RouteID   string               `json:"routeId,omitempty"`
	VehicleID string               `json:"vehicleId,omitempty"`
	Status    *display.StatusPanel `json:"status,omitempty"`
	Message   string               `json:"message,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func newSelectionResponse(snap display.Snapshot) SelectionResponse {
	resp := SelectionResponse{
		Seq:       snap.Seq,
		State:     snap.State.String(),
		UpdatedAt: snap.At,
	}
	switch {
	case snap.Unavailable:
		resp.State = "unavailable"
		resp.Message = display.MsgLoadFailed
	case snap.State == display.Selected:
		resp.RouteID = snap.Route.ID
		resp.VehicleID = snap.Vehicle.ID
		resp.Status = snap.Status()
	default:
		resp.Message = display.MsgNoVehicle
	}
	return resp
}

func (h *HTTPHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newSelectionResponse(h.sim.Snapshot()))
}

type SelectRequest struct {
	RouteID string `json:"routeId"`
}

func (h *HTTPHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.selectRoute(w, r, req.RouteID)
}

func (h *HTTPHandler) DeleteSelection(w http.ResponseWriter, r *http.Request) {
	h.selectRoute(w, r, "")
}

func (h *HTTPHandler) selectRoute(w http.ResponseWriter, r *http.Request, routeID string) {
	if err := h.sim.Select(r.Context(), routeID); err != nil {
		status, msg := selectionError(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, newSelectionResponse(h.sim.Snapshot()))
}

// selectionError maps a Select failure to an HTTP status and client message.
func selectionError(err error) (int, string) {
	switch {
	case errors.Is(err, display.ErrUnknownRoute):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, display.ErrNoVehicle):
		return http.StatusConflict, display.MsgNoVehicle
	case errors.Is(err, sim.ErrUnavailable):
		return http.StatusServiceUnavailable, display.MsgLoadFailed
	case errors.Is(err, sim.ErrStopped):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *HTTPHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	vp, err := parseViewport(r, h.viewport)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.sim.Snapshot().Frame(vp))
}

// parseViewport reads width and height from the query, falling back to def
// for each one that is absent.
func parseViewport(r *http.Request, def render.Viewport) (render.Viewport, error) {
	vp := def
	q := r.URL.Query()
	if s := q.Get("width"); s != "" {
		w, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vp, errors.New("invalid width parameter")
		}
		vp.Width = w
	}
	if s := q.Get("height"); s != "" {
		ht, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vp, errors.New("invalid height parameter")
		}
		vp.Height = ht
	}
	if !vp.Valid() || math.IsInf(vp.Width, 0) || math.IsInf(vp.Height, 0) {
		return vp, errors.New("width and height must be positive")
	}
	return vp, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
