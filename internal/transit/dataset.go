package transit

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks field constraints and cross references. It fills Stop.ID
// from the map keys and returns one error joining every problem found.
func (d *Dataset) Validate() error {
	for id, s := range d.Stops {
		s.ID = id
		d.Stops[id] = s
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("dataset fields: %w", err)
	}

	var errs []error
	routes := make(map[string]int, len(d.Routes))
	for _, r := range d.Routes {
		if _, dup := routes[r.ID]; dup {
			errs = append(errs, fmt.Errorf("route %q: duplicate id", r.ID))
		}
		routes[r.ID] = len(r.Stops)
		for i, sid := range r.Stops {
			if _, ok := d.Stops[sid]; !ok {
				errs = append(errs, fmt.Errorf("route %q: stop %d references unknown stop %q", r.ID, i, sid))
			}
		}
	}
	seen := make(map[string]struct{}, len(d.Vehicles))
	for _, v := range d.Vehicles {
		if _, dup := seen[v.ID]; dup {
			errs = append(errs, fmt.Errorf("vehicle %q: duplicate id", v.ID))
		}
		seen[v.ID] = struct{}{}
		n, ok := routes[v.RouteID]
		if !ok {
			errs = append(errs, fmt.Errorf("vehicle %q: unknown route %q", v.ID, v.RouteID))
			continue
		}
		if v.CurrentStopIndex >= n || v.NextStopIndex >= n {
			errs = append(errs, fmt.Errorf("vehicle %q: stop index out of range for route %q with %d stops", v.ID, v.RouteID, n))
		}
	}
	return errors.Join(errs...)
}

// Normalize repairs vehicles whose next stop index does not follow the current
// one around the cycle. It returns a description of every fix applied. Call it
// after a successful Validate.
func (d *Dataset) Normalize() []string {
	var fixes []string
	for i := range d.Vehicles {
		v := &d.Vehicles[i]
		r, ok := d.Route(v.RouteID)
		if !ok {
			continue
		}
		want := (v.CurrentStopIndex + 1) % len(r.Stops)
		if v.NextStopIndex != want {
			fixes = append(fixes, fmt.Sprintf("vehicle %q: nextStopIndex %d -> %d", v.ID, v.NextStopIndex, want))
			v.NextStopIndex = want
		}
	}
	return fixes
}

func (d *Dataset) Route(id string) (Route, bool) {
	for _, r := range d.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// RouteStops resolves a route's stop ids in order.
func (d *Dataset) RouteStops(id string) ([]Stop, error) {
	r, ok := d.Route(id)
	if !ok {
		return nil, fmt.Errorf("unknown route %q", id)
	}
	stops := make([]Stop, 0, len(r.Stops))
	for _, sid := range r.Stops {
		s, ok := d.Stops[sid]
		if !ok {
			return nil, fmt.Errorf("route %q: unknown stop %q", id, sid)
		}
		stops = append(stops, s)
	}
	return stops, nil
}

// VehicleForRoute returns the index of the first vehicle, in dataset order,
// that runs on the route.
func (d *Dataset) VehicleForRoute(routeID string) (int, bool) {
	for i, v := range d.Vehicles {
		if v.RouteID == routeID {
			return i, true
		}
	}
	return -1, false
}
