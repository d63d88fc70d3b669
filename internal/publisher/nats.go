package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"transit-map/internal/display"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name("transit-map"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), logSubjects: logSubjects, metrics: m, logger: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	VehicleID        string    `json:"vehicleId"`
	RouteID          string    `json:"routeId"`
	Timestamp        time.Time `json:"timestamp"`
	X                float64   `json:"x"`
	Y                float64   `json:"y"`
	CurrentStopIndex int       `json:"currentStopIndex"`
	NextStopIndex    int       `json:"nextStopIndex"`
	NextStopID       string    `json:"nextStopId"`
	ETAUnits         int       `json:"etaUnits"`
	Status           string    `json:"status"`
	Arrived          bool      `json:"arrived"`
}

// NewPositionMessage builds the wire message for the selected vehicle in snap.
func NewPositionMessage(snap display.Snapshot, arrived bool) PositionMessage {
	v := snap.Vehicle
	msg := PositionMessage{
		VehicleID:        v.ID,
		RouteID:          v.RouteID,
		Timestamp:        snap.At,
		X:                v.Position.X,
		Y:                v.Position.Y,
		CurrentStopIndex: v.CurrentStopIndex,
		NextStopIndex:    v.NextStopIndex,
		ETAUnits:         snap.ETA,
		Status:           v.Status,
		Arrived:          arrived,
	}
	if next, ok := snap.NextStop(); ok {
		msg.NextStopID = next.ID
	}
	return msg
}

// Subject is <prefix>.<route>.<vehicle> with each token sanitized.
func (p *NATSPublisher) Subject(routeID, vehicleID string) string {
	return Subject(p.prefix, routeID, vehicleID)
}

func Subject(prefix, routeID, vehicleID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectToken(prefix), subjectToken(routeID), subjectToken(vehicleID))
}

// PublishPosition sends the selected vehicle of snap. Snapshots without a
// selection are ignored.
func (p *NATSPublisher) PublishPosition(snap display.Snapshot, arrived bool) error {
	if snap.State != display.Selected {
		return nil
	}
	msg := NewPositionMessage(snap, arrived)
	subject := p.Subject(msg.RouteID, msg.VehicleID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
