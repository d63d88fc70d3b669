package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transit-map/internal/hub"
	"transit-map/internal/render"
)

type RouterConfig struct {
	Sim            Simulation
	Hub            *hub.Hub
	Events         *EventsHandler
	Viewport       render.Viewport
	CORSOrigins    []string
	WSBuffer       int
	WSWriteTimeout time.Duration
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	httpHandler := NewHTTPHandler(cfg.Sim, cfg.Viewport)
	wsHandler := NewWSHandler(cfg.Hub, cfg.Sim, WSOptions{
		Viewport:     cfg.Viewport,
		BufferSize:   cfg.WSBuffer,
		Origins:      cfg.CORSOrigins,
		WriteTimeout: cfg.WSWriteTimeout,
	}, cfg.Logger)
	healthHandler := NewHealthHandler(cfg.Sim)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	r.Route("/v1", func(r chi.Router) {
		// Streaming endpoints stay outside the gzip wrapper.
		r.Get("/ws", wsHandler.ServeWS)
		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(GzipMiddleware)
			r.Get("/routes", httpHandler.ListRoutes)
			r.Get("/selection", httpHandler.GetSelection)
			r.Put("/selection", httpHandler.PutSelection)
			r.Delete("/selection", httpHandler.DeleteSelection)
			r.Get("/frame", httpHandler.GetFrame)
		})
	})

	return r
}
