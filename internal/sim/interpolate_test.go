package sim

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"transit-map/internal/transit"
)

const eps = 1e-9

func lineStops() []transit.Stop {
	return []transit.Stop{
		{ID: "A", Name: "A", X: 0, Y: 0},
		{ID: "B", Name: "B", X: 100, Y: 0},
	}
}

func TestAdvanceTwoStopScenario(t *testing.T) {
	stops := lineStops()
	v := transit.Vehicle{ID: "v", CurrentStopIndex: 0, NextStopIndex: 1, Speed: 10}

	if arrived := Advance(&v, stops); arrived {
		t.Fatal("arrived after first tick")
	}
	want := transit.Vehicle{ID: "v", Position: transit.Point{X: 10}, CurrentStopIndex: 0, NextStopIndex: 1, Speed: 10}
	if diff := cmp.Diff(want, v, cmpopts.EquateApprox(0, eps)); diff != "" {
		t.Fatalf("after 1 tick (-want +got):\n%s", diff)
	}

	arrivals := 0
	for i := 1; i < 10; i++ {
		if Advance(&v, stops) {
			arrivals++
		}
	}
	if arrivals != 1 {
		t.Fatalf("arrivals = %d, want 1", arrivals)
	}
	if v.Position != (transit.Point{X: 100, Y: 0}) {
		t.Fatalf("position = %+v, want exactly B", v.Position)
	}
	if v.CurrentStopIndex != 1 || v.NextStopIndex != 0 {
		t.Fatalf("indices = %d/%d, want 1/0", v.CurrentStopIndex, v.NextStopIndex)
	}

	// Heading back towards A on the wrapped segment.
	Advance(&v, stops)
	if math.Abs(v.Position.X-90) > eps || v.Position.Y != 0 {
		t.Fatalf("position on return leg = %+v", v.Position)
	}
}

func TestAdvanceDegenerateSegment(t *testing.T) {
	stops := []transit.Stop{
		{ID: "A", X: 40, Y: 40},
		{ID: "B", X: 40, Y: 40},
		{ID: "C", X: 60, Y: 40},
	}
	v := transit.Vehicle{Position: transit.Point{X: 40, Y: 40}, CurrentStopIndex: 0, NextStopIndex: 1, Speed: 5}
	if !Advance(&v, stops) {
		t.Fatal("coincident stops must count as an arrival")
	}
	if math.IsNaN(v.Position.X) || math.IsNaN(v.Position.Y) {
		t.Fatalf("position became NaN: %+v", v.Position)
	}
	if v.Position != (transit.Point{X: 40, Y: 40}) {
		t.Fatalf("position = %+v", v.Position)
	}
	if v.CurrentStopIndex != 1 || v.NextStopIndex != 2 {
		t.Fatalf("indices = %d/%d, want 1/2", v.CurrentStopIndex, v.NextStopIndex)
	}
}

func TestAdvanceInvariants(t *testing.T) {
	stops := []transit.Stop{
		{ID: "A", X: 10, Y: 10},
		{ID: "B", X: 70, Y: 20},
		{ID: "C", X: 55, Y: 90},
		{ID: "D", X: 5, Y: 60},
	}
	for _, speed := range []float64{0.7, 3, 12.5, 45, 200} {
		t.Run(fmt.Sprintf("speed=%v", speed), func(t *testing.T) {
			v := transit.Vehicle{Position: stops[0].Point(), CurrentStopIndex: 0, NextStopIndex: 1, Speed: speed}
			for tick := 0; tick < 500; tick++ {
				cur := stops[v.CurrentStopIndex]
				next := stops[v.NextStopIndex]
				before := v
				segLen := cur.Point().DistanceTo(next.Point())
				traveled := before.Position.DistanceTo(cur.Point())

				arrived := Advance(&v, stops)

				if v.NextStopIndex != (v.CurrentStopIndex+1)%len(stops) {
					t.Fatalf("tick %d: indices %d/%d break the cycle", tick, v.CurrentStopIndex, v.NextStopIndex)
				}
				if traveled+speed >= segLen {
					if !arrived {
						t.Fatalf("tick %d: expected arrival", tick)
					}
					if v.Position != next.Point() {
						t.Fatalf("tick %d: position %+v, want exactly %+v", tick, v.Position, next.Point())
					}
					if v.CurrentStopIndex != before.NextStopIndex {
						t.Fatalf("tick %d: current index %d, want %d", tick, v.CurrentStopIndex, before.NextStopIndex)
					}
					continue
				}
				if arrived {
					t.Fatalf("tick %d: unexpected arrival", tick)
				}
				if v.CurrentStopIndex != before.CurrentStopIndex {
					t.Fatalf("tick %d: indices moved without arrival", tick)
				}
				moved := before.Position.DistanceTo(v.Position)
				if math.Abs(moved-speed) > 1e-6 {
					t.Fatalf("tick %d: moved %v, want %v", tick, moved, speed)
				}
				if got := v.Position.DistanceTo(cur.Point()); math.Abs(got-(traveled+speed)) > 1e-6 {
					t.Fatalf("tick %d: distance from current stop %v, want %v", tick, got, traveled+speed)
				}
				// Still on the segment: the two partial lengths add up to the whole.
				onSeg := cur.Point().DistanceTo(v.Position) + v.Position.DistanceTo(next.Point())
				if math.Abs(onSeg-segLen) > 1e-6 {
					t.Fatalf("tick %d: position %+v left the segment", tick, v.Position)
				}
			}
		})
	}
}
