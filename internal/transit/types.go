package transit

import "math"

// Point is a position in normalized map space: both axes run 0..100 and are
// read as a percentage of the viewport.
type Point struct {
	X float64 `json:"x" yaml:"x" validate:"gte=0,lte=100"`
	Y float64 `json:"y" yaml:"y" validate:"gte=0,lte=100"`
}

// DistanceTo is the euclidean distance in map units.
func (p Point) DistanceTo(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

type Stop struct {
	ID   string  `json:"-" yaml:"-"` // filled from the stops map key
	Name string  `json:"name" yaml:"name" validate:"required"`
	X    float64 `json:"x" yaml:"x" validate:"gte=0,lte=100"`
	Y    float64 `json:"y" yaml:"y" validate:"gte=0,lte=100"`
}

func (s Stop) Point() Point { return Point{X: s.X, Y: s.Y} }

type Route struct {
	ID    string   `json:"id" yaml:"id" validate:"required"`
	Name  string   `json:"name" yaml:"name" validate:"required"`
	Stops []string `json:"stops" yaml:"stops" validate:"required,min=1,dive,required"`
}

// Vehicle is the only mutable part of a Dataset. Position and the two stop
// indices change on every simulation step.
type Vehicle struct {
	ID               string  `json:"id" yaml:"id" validate:"required"`
	RouteID          string  `json:"routeId" yaml:"routeId" validate:"required"`
	Position         Point   `json:"position" yaml:"position"`
	CurrentStopIndex int     `json:"currentStopIndex" yaml:"currentStopIndex" validate:"gte=0"`
	NextStopIndex    int     `json:"nextStopIndex" yaml:"nextStopIndex" validate:"gte=0"`
	Speed            float64 `json:"speed" yaml:"speed" validate:"gt=0"`
	Status           string  `json:"status" yaml:"status"`
}

// Dataset is loaded once at startup. Stops and routes are read-only after
// Validate; vehicles are mutated by the simulation loop only.
type Dataset struct {
	Stops    map[string]Stop `json:"stops" yaml:"stops" validate:"required,dive"`
	Routes   []Route         `json:"routes" yaml:"routes" validate:"dive"`
	Vehicles []Vehicle       `json:"vehicles" yaml:"vehicles" validate:"dive"`
}
