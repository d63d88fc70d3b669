// Package display owns the selection state machine and turns the selected
// vehicle into drawable frames.
package display

import (
	"errors"
	"fmt"
	"math"

	"transit-map/internal/transit"
)

type State int

const (
	NoSelection State = iota
	Selected
)

func (s State) String() string {
	switch s {
	case NoSelection:
		return "no_selection"
	case Selected:
		return "selected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrUnknownRoute = errors.New("unknown route")
	ErrNoVehicle    = errors.New("no vehicle on route")
)

// DefaultETAFactor turns ticks-to-arrival into the unit shown next to the ETA.
const DefaultETAFactor = 5

// Controller holds the dataset and the single selected vehicle. It is not safe
// for concurrent use; the simulation manager serializes every call.
type Controller struct {
	data      *transit.Dataset
	etaFactor float64

	state   State
	vehicle int
	route   transit.Route
	stops   []transit.Stop
}

func NewController(data *transit.Dataset, etaFactor float64) *Controller {
	if etaFactor <= 0 {
		etaFactor = DefaultETAFactor
	}
	return &Controller{data: data, etaFactor: etaFactor, vehicle: -1}
}

func (c *Controller) State() State { return c.state }

// Select focuses the first vehicle, in dataset order, running on routeID. An
// empty routeID clears the selection. A route without vehicles also clears it
// and returns ErrNoVehicle; an unknown route leaves the state untouched.
func (c *Controller) Select(routeID string) error {
	if routeID == "" {
		c.Clear()
		return nil
	}
	route, ok := c.data.Route(routeID)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownRoute, routeID)
	}
	idx, ok := c.data.VehicleForRoute(routeID)
	if !ok {
		c.Clear()
		return fmt.Errorf("%w %q", ErrNoVehicle, routeID)
	}
	stops, err := c.data.RouteStops(routeID)
	if err != nil {
		return err
	}
	c.state = Selected
	c.vehicle = idx
	c.route = route
	c.stops = stops
	return nil
}

func (c *Controller) Clear() {
	c.state = NoSelection
	c.vehicle = -1
	c.route = transit.Route{}
	c.stops = nil
}

// Selection exposes the selected vehicle for mutation together with its
// route's stops in order. ok is false when nothing is selected.
func (c *Controller) Selection() (v *transit.Vehicle, stops []transit.Stop, ok bool) {
	if c.state != Selected {
		return nil, nil, false
	}
	return &c.data.Vehicles[c.vehicle], c.stops, true
}

type RouteOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SelectPrompt is the first option of every route list and clears the
// selection when chosen.
var SelectPrompt = RouteOption{ID: "", Name: "Select a route"}

func (c *Controller) Routes() []RouteOption {
	opts := make([]RouteOption, 0, len(c.data.Routes)+1)
	opts = append(opts, SelectPrompt)
	for _, r := range c.data.Routes {
		opts = append(opts, RouteOption{ID: r.ID, Name: r.Name})
	}
	return opts
}

// Snapshot copies the state needed to draw a frame. The copy stays valid
// while the controller keeps mutating the vehicle.
func (c *Controller) Snapshot() Snapshot {
	if c.state != Selected {
		return Snapshot{State: NoSelection}
	}
	v := c.data.Vehicles[c.vehicle]
	next := c.stops[v.NextStopIndex]
	return Snapshot{
		State:   Selected,
		Route:   c.route,
		Stops:   c.stops,
		Vehicle: v,
		ETA:     ETA(v, next, c.etaFactor),
	}
}

// ETA is the rounded remaining distance over speed, scaled into display units.
func ETA(v transit.Vehicle, next transit.Stop, factor float64) int {
	if v.Speed <= 0 {
		return 0
	}
	return int(math.Round(v.Position.DistanceTo(next.Point()) / v.Speed * factor))
}
