package display

import (
	"time"

	"transit-map/internal/render"
	"transit-map/internal/transit"
)

const (
	MsgSelectRoute = "Select a route to see details."
	MsgNoVehicle   = "No vehicle selected."
	MsgLoadFailed  = "Error loading route data. Please try again later."

	// ETAUnit labels the ETA. The value is a display scale, not wall-clock time.
	ETAUnit = "minutes"
)

// Snapshot is an immutable view of the display state after one event.
type Snapshot struct {
	Seq         uint64
	At          time.Time
	State       State
	Unavailable bool

	Route   transit.Route
	Stops   []transit.Stop
	Vehicle transit.Vehicle
	ETA     int
}

// NextStop returns the stop the selected vehicle is heading to.
func (s Snapshot) NextStop() (transit.Stop, bool) {
	if s.State != Selected || len(s.Stops) == 0 {
		return transit.Stop{}, false
	}
	return s.Stops[s.Vehicle.NextStopIndex%len(s.Stops)], true
}

type Frame struct {
	Seq      uint64          `json:"seq"`
	State    string          `json:"state"`
	Viewport render.Viewport `json:"viewport"`

	Route    *RouteOption   `json:"route,omitempty"`
	Polyline []render.Pixel `json:"polyline,omitempty"`
	Stops    []StopMarker   `json:"stops,omitempty"`
	Vehicle  *VehicleMarker `json:"vehicle,omitempty"`
	StopList []StopListItem `json:"stopList,omitempty"`
	Status   *StatusPanel   `json:"status,omitempty"`

	RouteMessage  string `json:"routeMessage,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

type StopMarker struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Pixel render.Pixel `json:"pixel"`
}

type VehicleMarker struct {
	ID    string       `json:"id"`
	Pixel render.Pixel `json:"pixel"`
}

const (
	RoleCurrent = "current-stop"
	RoleNext    = "next-stop"
)

type StopListItem struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type StatusPanel struct {
	VehicleID string `json:"vehicleId"`
	Status    string `json:"status"`
	NextStop  string `json:"nextStop"`
	ETA       int    `json:"eta"`
	ETAUnit   string `json:"etaUnit"`
}

// Status returns the info panel contents, or nil when nothing is selected.
func (s Snapshot) Status() *StatusPanel {
	next, ok := s.NextStop()
	if !ok {
		return nil
	}
	return &StatusPanel{
		VehicleID: s.Vehicle.ID,
		Status:    s.Vehicle.Status,
		NextStop:  next.Name,
		ETA:       s.ETA,
		ETAUnit:   ETAUnit,
	}
}

// Frame projects the snapshot onto vp. Every call projects from normalized
// coordinates again.
func (s Snapshot) Frame(vp render.Viewport) Frame {
	f := Frame{Seq: s.Seq, State: s.State.String(), Viewport: vp}
	if s.Unavailable {
		f.State = "unavailable"
		f.RouteMessage = MsgLoadFailed
		return f
	}
	if s.State != Selected {
		f.RouteMessage = MsgSelectRoute
		f.StatusMessage = MsgNoVehicle
		return f
	}

	f.Route = &RouteOption{ID: s.Route.ID, Name: s.Route.Name}
	pts := make([]transit.Point, len(s.Stops))
	f.Stops = make([]StopMarker, len(s.Stops))
	f.StopList = make([]StopListItem, len(s.Stops))
	for i, st := range s.Stops {
		pts[i] = st.Point()
		f.Stops[i] = StopMarker{ID: st.ID, Name: st.Name, Pixel: render.Project(st.Point(), vp)}
		item := StopListItem{Name: st.Name}
		switch i {
		case s.Vehicle.CurrentStopIndex:
			item.Role = RoleCurrent
		case s.Vehicle.NextStopIndex:
			item.Role = RoleNext
		}
		f.StopList[i] = item
	}
	// Open polyline: the closing leg back to the first stop is not drawn.
	f.Polyline = render.ProjectAll(pts, vp)
	f.Vehicle = &VehicleMarker{ID: s.Vehicle.ID, Pixel: render.Project(s.Vehicle.Position, vp)}
	f.Status = s.Status()
	return f
}
