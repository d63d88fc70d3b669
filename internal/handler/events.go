package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/r3labs/sse/v2"

	"transit-map/internal/display"
)

// StatusStream is the SSE stream carrying info panel updates.
const StatusStream = "status"

type StatusEvent struct {
	Seq     uint64               `json:"seq"`
	State   string               `json:"state"`
	RouteID string               `json:"routeId,omitempty"`
	Status  *display.StatusPanel `json:"status,omitempty"`
	Message string               `json:"message,omitempty"`
}

func newStatusEvent(snap display.Snapshot) StatusEvent {
	sel := newSelectionResponse(snap)
	return StatusEvent{
		Seq:     sel.Seq,
		State:   sel.State,
		RouteID: sel.RouteID,
		Status:  sel.Status,
		Message: sel.Message,
	}
}

// EventsHandler streams status panel updates to browsers that only need the
// text, not the map.
type EventsHandler struct {
	srv    *sse.Server
	logger *slog.Logger
}

func NewEventsHandler(s Simulation, logger *slog.Logger) *EventsHandler {
	srv := sse.New()
	srv.AutoReplay = false
	srv.CreateStream(StatusStream)

	h := &EventsHandler{srv: srv, logger: logger.With("component", "sse")}
	s.Subscribe(h.Publish)
	return h
}

// Publish pushes snap to the status stream. It never blocks.
func (h *EventsHandler) Publish(snap display.Snapshot) {
	data, err := json.Marshal(newStatusEvent(snap))
	if err != nil {
		h.logger.Error("marshal status event", "error", err)
		return
	}
	h.srv.TryPublish(StatusStream, &sse.Event{
		ID:    []byte(strconv.FormatUint(snap.Seq, 10)),
		Event: []byte(StatusStream),
		Data:  data,
	})
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		q := r.URL.Query()
		q.Set("stream", StatusStream)
		r.URL.RawQuery = q.Encode()
	}
	h.srv.ServeHTTP(w, r)
}

func (h *EventsHandler) Close() {
	h.srv.Close()
}
