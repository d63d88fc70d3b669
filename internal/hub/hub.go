package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"transit-map/internal/display"
	mmetrics "transit-map/internal/metrics"
	"transit-map/internal/render"
)

// Client is one connected map. Each client draws at its own viewport size, so
// frames are projected per client.
type Client struct {
	ID   string
	Send chan []byte

	mu       sync.RWMutex
	viewport render.Viewport
}

func NewClient(id string, bufferSize int, vp render.Viewport) *Client {
	return &Client{
		ID:       id,
		Send:     make(chan []byte, bufferSize),
		viewport: vp,
	}
}

func (c *Client) Viewport() render.Viewport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewport
}

func (c *Client) SetViewport(vp render.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = vp
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	broadcast chan display.Snapshot

	metrics *mmetrics.Collector
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger, metrics *mmetrics.Collector) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan display.Snapshot, 16),
		metrics:   metrics,
		logger:    logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case snap := <-h.broadcast:
			h.fanout(snap)
		}
	}
}

// Broadcast queues snap for every client without blocking the caller.
func (h *Hub) Broadcast(snap display.Snapshot) {
	select {
	case h.broadcast <- snap:
	default:
		h.logger.Warn("broadcast channel full, dropping snapshot", "seq", snap.Seq)
	}
}

// Register adds client to the fan-out. Once the hub has shut down the client's
// Send channel is closed straight away.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(client.Send)
		return
	}
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.setClientGauge(n)
	h.logger.Debug("client registered", "client_id", client.ID, "total", n)
}

// Unregister removes client and closes its Send channel. Repeated calls are
// no-ops.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.Send)
	n := len(h.clients)
	h.mu.Unlock()

	h.setClientGauge(n)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", n)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type FrameMessage struct {
	Type    string        `json:"type"`
	Payload display.Frame `json:"payload"`
}

// EncodeFrame projects snap onto vp and wraps it in a frame message.
func EncodeFrame(snap display.Snapshot, vp render.Viewport) ([]byte, error) {
	return json.Marshal(FrameMessage{Type: "frame", Payload: snap.Frame(vp)})
}

// SendFrame queues a frame for one client, as after a resize.
func (h *Hub) SendFrame(client *Client, snap display.Snapshot) bool {
	data, err := EncodeFrame(snap, client.Viewport())
	if err != nil {
		h.logger.Error("encode frame", "error", err)
		return false
	}
	return h.Send(client, data)
}

// Send queues data for a registered client. It reports false when the client
// is gone or its buffer is full.
func (h *Hub) Send(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	return h.enqueue(client, data)
}

func (h *Hub) fanout(snap display.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Clients sharing a viewport share one encoding.
	encoded := make(map[render.Viewport][]byte)
	for client := range h.clients {
		vp := client.Viewport()
		data, ok := encoded[vp]
		if !ok {
			var err error
			data, err = EncodeFrame(snap, vp)
			if err != nil {
				h.logger.Error("encode frame", "error", err)
				continue
			}
			encoded[vp] = data
		}
		h.enqueue(client, data)
	}
}

func (h *Hub) enqueue(client *Client, data []byte) bool {
	select {
	case client.Send <- data:
		return true
	default:
		if h.metrics != nil {
			h.metrics.FramesDropped.Inc()
		}
		h.logger.Debug("client send buffer full", "client_id", client.ID)
		return false
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.setClientGauge(0)
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}
