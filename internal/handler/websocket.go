package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transit-map/internal/hub"
	"transit-map/internal/render"
)

type WSOptions struct {
	// Viewport applies until the client sends its first resize.
	Viewport     render.Viewport
	BufferSize   int
	Origins      []string
	WriteTimeout time.Duration
}

type WSHandler struct {
	hub    *hub.Hub
	sim    Simulation
	opts   WSOptions
	logger *slog.Logger
}

func NewWSHandler(h *hub.Hub, s Simulation, opts WSOptions, logger *slog.Logger) *WSHandler {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WSHandler{
		hub:    h,
		sim:    s,
		opts:   opts,
		logger: logger.With("component", "ws"),
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ResizePayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SelectPayload struct {
	RouteID string `json:"routeId"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string       `json:"type"`
	Payload ErrorPayload `json:"payload"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	vp, err := parseViewport(r, h.opts.Viewport)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.Origins,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), h.opts.BufferSize, vp)
	h.hub.Register(client)
	h.hub.SendFrame(client, h.sim.Snapshot())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			h.sendError(client, http.StatusBadRequest, "invalid message format")
			continue
		}

		switch msg.Type {
		case "resize":
			var payload ResizePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.sendError(client, http.StatusBadRequest, "invalid resize payload")
				continue
			}
			vp := render.Viewport{Width: payload.Width, Height: payload.Height}
			if !vp.Valid() || math.IsInf(vp.Width, 0) || math.IsInf(vp.Height, 0) {
				h.sendError(client, http.StatusBadRequest, "width and height must be positive")
				continue
			}
			client.SetViewport(vp)
			h.hub.SendFrame(client, h.sim.Snapshot())

		case "select":
			var payload SelectPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.sendError(client, http.StatusBadRequest, "invalid select payload")
				continue
			}
			// The new frame reaches every client through the hub broadcast.
			if err := h.sim.Select(ctx, payload.RouteID); err != nil {
				code, message := selectionError(err)
				h.sendError(client, code, message)
			}

		case "ping":
			h.sendPong(client)

		default:
			h.sendError(client, http.StatusBadRequest, "unknown message type: "+msg.Type)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendError(client *hub.Client, code int, message string) {
	data, err := json.Marshal(ErrorMessage{
		Type:    "error",
		Payload: ErrorPayload{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	h.hub.Send(client, data)
}

func (h *WSHandler) sendPong(client *hub.Client) {
	data, err := json.Marshal(PongMessage{Type: "pong"})
	if err != nil {
		return
	}
	h.hub.Send(client, data)
}
