package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-map/internal/config"
	"transit-map/internal/dataset"
	"transit-map/internal/handler"
	"transit-map/internal/hub"
	"transit-map/internal/metrics"
	"transit-map/internal/publisher"
	"transit-map/internal/render"
	"transit-map/internal/sim"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting transit map simulator",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"tick_interval", cfg.TickInterval,
		"nats_enabled", cfg.NATSURL != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.TickInterval)
	if cfg.MetricsAddr != "" {
		msrv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = msrv.Shutdown(shutdownCtx)
		}()
	}

	opts := sim.Options{
		Interval: cfg.TickInterval,
		Metrics:  mcol,
		Logger:   logger,
	}

	// Initialize NATS publisher
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			logger.Error("nats error", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts.Publisher = pub
	}

	// A failed load is not fatal: the service stays up and reports it.
	var mgr *sim.Manager
	loadCtx, loadCancel := context.WithTimeout(ctx, cfg.DatasetTimeout)
	data, err := dataset.NewLoader(cfg.DatasetTimeout, logger).Load(loadCtx, cfg.DatasetSource)
	loadCancel()
	if err != nil {
		var le *dataset.LoadError
		if !errors.As(err, &le) {
			logger.Error("unexpected dataset error", "error", err)
			os.Exit(1)
		}
		logger.Error("dataset load failed", "source", le.Source, "error", le.Err)
		mcol.ObserveDataset(false, 0, 0, 0)
		mgr = sim.NewUnavailableManager(err, opts)
	} else {
		mcol.ObserveDataset(true, len(data.Stops), len(data.Routes), len(data.Vehicles))
		mgr = sim.NewManager(data, cfg.ETAFactor, opts)
	}

	wsHub := hub.NewHub(logger, mcol)
	mgr.Subscribe(wsHub.Broadcast)
	events := handler.NewEventsHandler(mgr, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Sim:            mgr,
		Hub:            wsHub,
		Events:         events,
		Viewport:       render.Viewport{Width: cfg.DefaultWidth, Height: cfg.DefaultHeight},
		CORSOrigins:    cfg.CORSOrigins,
		WSBuffer:       cfg.WSBuffer,
		WSWriteTimeout: cfg.WriteTimeout,
		Logger:         logger,
	})

	// The server-wide WriteTimeout stays zero: WebSocket and SSE responses are
	// long-lived, so WRITE_TIMEOUT bounds each WebSocket write instead.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	go wsHub.Run(ctx)
	mgr.Start(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// SSE subscribers hold their requests open until the streams close.
	events.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	mgr.Stop()

	logger.Info("shutdown complete")
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
