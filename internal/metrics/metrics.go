package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Ticks        prometheus.Counter
	Arrivals     prometheus.Counter
	Selections   *prometheus.CounterVec // result label: selected|cleared|unknown_route|no_vehicle|unavailable
	Selected     prometheus.Gauge
	TickDuration prometheus.Histogram

	WSClients     prometheus.Gauge
	FramesDropped prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DatasetLoaded prometheus.Gauge
	DatasetSize   *prometheus.GaugeVec // kind label: stops|routes|vehicles
	TickInterval  prometheus.Gauge     // seconds
}

func NewCollector(tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitmap_ticks_total",
			Help: "Total simulation ticks processed.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitmap_stop_arrivals_total",
			Help: "Total stop arrivals of the selected vehicle.",
		}),
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitmap_selections_total",
			Help: "Route selection requests by result.",
		}, []string{"result"}),
		Selected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitmap_vehicle_selected",
			Help: "1 if a vehicle is selected, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitmap_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitmap_ws_clients",
			Help: "Number of connected WebSocket clients.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitmap_frames_dropped_total",
			Help: "Frames dropped because a client send buffer was full.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitmap_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitmap_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitmap_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitmap_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DatasetLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitmap_dataset_loaded",
			Help: "1 if the route dataset loaded, 0 if loading failed.",
		}),
		DatasetSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitmap_dataset_entries",
			Help: "Number of dataset entries by kind.",
		}, []string{"kind"}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitmap_tick_interval_seconds",
			Help: "Simulation tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Ticks, c.Arrivals, c.Selections, c.Selected, c.TickDuration,
		c.WSClients, c.FramesDropped,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DatasetLoaded, c.DatasetSize, c.TickInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

// ObserveDataset records whether the dataset loaded and how large it is.
func (c *Collector) ObserveDataset(loaded bool, stops, routes, vehicles int) {
	if !loaded {
		c.DatasetLoaded.Set(0)
		return
	}
	c.DatasetLoaded.Set(1)
	c.DatasetSize.WithLabelValues("stops").Set(float64(stops))
	c.DatasetSize.WithLabelValues("routes").Set(float64(routes))
	c.DatasetSize.WithLabelValues("vehicles").Set(float64(vehicles))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
