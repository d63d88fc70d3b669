package sim

import (
	"math"

	"transit-map/internal/transit"
)

// Advance moves v one simulation step towards its next stop on a route whose
// stops are given in order. Reaching or passing the next stop snaps the vehicle
// onto it and advances both indices around the cycle; leftover distance is
// dropped. A zero-length segment counts as an immediate arrival.
// It reports whether the vehicle arrived at a stop.
func Advance(v *transit.Vehicle, stops []transit.Stop) bool {
	n := len(stops)
	if n == 0 {
		return false
	}
	cur := stops[v.CurrentStopIndex%n]
	next := stops[v.NextStopIndex%n]

	dx := next.X - cur.X
	dy := next.Y - cur.Y
	segLen := math.Hypot(dx, dy)
	if segLen == 0 {
		v.Position = next.Point()
		advanceStop(v, n)
		return true
	}

	traveled := v.Position.DistanceTo(cur.Point())
	if traveled+v.Speed >= segLen {
		v.Position = next.Point()
		advanceStop(v, n)
		return true
	}

	ratio := v.Speed / segLen
	v.Position.X += dx * ratio
	v.Position.Y += dy * ratio
	return false
}

func advanceStop(v *transit.Vehicle, n int) {
	v.CurrentStopIndex = v.NextStopIndex
	v.NextStopIndex = (v.NextStopIndex + 1) % n
}
