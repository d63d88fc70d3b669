package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"transit-map/internal/display"
	mmetrics "transit-map/internal/metrics"
	"transit-map/internal/transit"
)

var (
	ErrUnavailable = errors.New("route data unavailable")
	ErrStopped     = errors.New("simulation stopped")
)

// Scheduler delivers simulation ticks. Tests replace the wall-clock ticker
// with a channel they feed by hand.
type Scheduler interface {
	C() <-chan time.Time
	Stop()
}

type tickerScheduler struct{ t *time.Ticker }

func NewTicker(d time.Duration) Scheduler { return &tickerScheduler{t: time.NewTicker(d)} }

func (s *tickerScheduler) C() <-chan time.Time { return s.t.C }
func (s *tickerScheduler) Stop()               { s.t.Stop() }

// Publisher receives the selected vehicle after every tick.
type Publisher interface {
	PublishPosition(snap display.Snapshot, arrived bool) error
}

type Options struct {
	Interval  time.Duration
	Publisher Publisher
	Metrics   *mmetrics.Collector
	Logger    *slog.Logger
}

// Manager owns the application state. One goroutine, Run, applies ticks and
// selection changes in order; everything else reads immutable snapshots.
type Manager struct {
	ctrl     *display.Controller
	loadErr  error
	pub      Publisher
	interval time.Duration
	metrics  *mmetrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	cmds chan selectCmd
	done chan struct{}
	seq  uint64

	mu        sync.RWMutex
	snap      display.Snapshot
	listeners []func(display.Snapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type selectCmd struct {
	routeID string
	reply   chan error
}

func NewManager(data *transit.Dataset, etaFactor float64, opts Options) *Manager {
	m := newManager(opts)
	m.ctrl = display.NewController(data, etaFactor)
	m.snap = display.Snapshot{At: m.now(), State: display.NoSelection}
	return m
}

// NewUnavailableManager serves the load failure and never ticks.
func NewUnavailableManager(loadErr error, opts Options) *Manager {
	m := newManager(opts)
	m.loadErr = loadErr
	m.snap = display.Snapshot{At: m.now(), Unavailable: true}
	return m
}

func newManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pub:      opts.Publisher,
		interval: opts.Interval,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "sim"),
		now:      time.Now,
		cmds:     make(chan selectCmd),
		done:     make(chan struct{}),
	}
}

func (m *Manager) Available() bool { return m.ctrl != nil }

func (m *Manager) LoadError() error { return m.loadErr }

// Routes lists the selector options. It is empty when the dataset failed to
// load.
func (m *Manager) Routes() []display.RouteOption {
	if m.ctrl == nil {
		return []display.RouteOption{}
	}
	return m.ctrl.Routes()
}

func (m *Manager) Snapshot() display.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// simulation goroutine and must not block.
func (m *Manager) Subscribe(fn func(display.Snapshot)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Select hands a route choice to the simulation goroutine and waits for the
// outcome.
func (m *Manager) Select(ctx context.Context, routeID string) error {
	if m.ctrl == nil {
		m.countSelection("unavailable")
		return ErrUnavailable
	}
	cmd := selectCmd{routeID: routeID, reply: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the simulation on a wall-clock ticker until Stop or ctx ends.
// A manager without data never starts ticking.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if m.ctrl == nil {
			m.logger.Warn("dataset unavailable, simulation not started", "error", m.loadErr)
			<-ctx.Done()
			close(m.done)
			return
		}
		m.Run(ctx, NewTicker(m.interval))
	}()
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Run is the simulation loop. It stops sched when ctx is done.
func (m *Manager) Run(ctx context.Context, sched Scheduler) {
	defer close(m.done)
	defer sched.Stop()
	m.logger.Info("simulation started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("simulation stopped")
			return
		case <-sched.C():
			m.Step()
		case cmd := <-m.cmds:
			cmd.reply <- m.applySelect(cmd.routeID)
		}
	}
}

// Step advances the selected vehicle once. Only the simulation goroutine may
// call it while Run is active.
func (m *Manager) Step() {
	if m.ctrl == nil {
		return
	}
	start := time.Now()
	if m.metrics != nil {
		m.metrics.Ticks.Inc()
	}
	v, stops, ok := m.ctrl.Selection()
	if !ok {
		return
	}
	arrived := Advance(v, stops)
	snap := m.commit()
	if arrived {
		m.logger.Debug("vehicle arrived", "vehicle_id", v.ID, "stop_index", v.CurrentStopIndex, "stop", stops[v.CurrentStopIndex].Name)
		if m.metrics != nil {
			m.metrics.Arrivals.Inc()
		}
	}
	if m.pub != nil {
		if err := m.pub.PublishPosition(snap, arrived); err != nil {
			m.logger.Warn("publish error", "vehicle_id", v.ID, "error", err)
		}
	}
	if m.metrics != nil {
		m.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Manager) applySelect(routeID string) error {
	err := m.ctrl.Select(routeID)
	switch {
	case errors.Is(err, display.ErrUnknownRoute):
		m.countSelection("unknown_route")
		return err
	case errors.Is(err, display.ErrNoVehicle):
		m.countSelection("no_vehicle")
	case err != nil:
		m.logger.Error("select route", "route_id", routeID, "error", err)
		return err
	case routeID == "":
		m.countSelection("cleared")
	default:
		m.countSelection("selected")
	}
	snap := m.commit()
	m.logger.Info("selection changed", "route_id", routeID, "state", snap.State.String(), "vehicle_id", snap.Vehicle.ID)
	if m.metrics != nil {
		if snap.State == display.Selected {
			m.metrics.Selected.Set(1)
		} else {
			m.metrics.Selected.Set(0)
		}
	}
	return err
}

func (m *Manager) commit() display.Snapshot {
	m.seq++
	snap := m.ctrl.Snapshot()
	snap.Seq = m.seq
	snap.At = m.now()

	m.mu.Lock()
	m.snap = snap
	listeners := m.listeners
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

func (m *Manager) countSelection(result string) {
	if m.metrics != nil {
		m.metrics.Selections.WithLabelValues(result).Inc()
	}
}
