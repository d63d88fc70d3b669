package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"transit-map/internal/transit"
)

func TestProjectCorners(t *testing.T) {
	vp := Viewport{Width: 1280, Height: 720}
	if got := Project(transit.Point{}, vp); got != (Pixel{}) {
		t.Fatalf("origin projected to %+v", got)
	}
	if got := Project(transit.Point{X: 100, Y: 100}, vp); got != (Pixel{X: 1280, Y: 720}) {
		t.Fatalf("far corner projected to %+v", got)
	}
	if got := Project(transit.Point{X: 50, Y: 25}, vp); got != (Pixel{X: 640, Y: 180}) {
		t.Fatalf("midpoint projected to %+v", got)
	}
}

func TestProjectIdempotent(t *testing.T) {
	vp := Viewport{Width: 333, Height: 777}
	p := transit.Point{X: 12.34, Y: 87.6}
	if a, b := Project(p, vp), Project(p, vp); a != b {
		t.Fatalf("projections differ: %+v vs %+v", a, b)
	}
}

func TestProjectFollowsResize(t *testing.T) {
	p := transit.Point{X: 10, Y: 20}
	small := Project(p, Viewport{Width: 100, Height: 100})
	large := Project(p, Viewport{Width: 1000, Height: 500})
	if small == large {
		t.Fatal("projection ignored the new viewport")
	}
	if large != (Pixel{X: 100, Y: 100}) {
		t.Fatalf("large = %+v", large)
	}
}

func TestProjectAll(t *testing.T) {
	vp := Viewport{Width: 200, Height: 100}
	got := ProjectAll([]transit.Point{{X: 0, Y: 0}, {X: 50, Y: 50}, {X: 100, Y: 0}}, vp)
	want := []Pixel{{0, 0}, {100, 50}, {200, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ProjectAll (-want +got):\n%s", diff)
	}
}

func TestViewportValid(t *testing.T) {
	if (Viewport{Width: 0, Height: 10}).Valid() {
		t.Fatal("zero width accepted")
	}
	if !(Viewport{Width: 1, Height: 1}).Valid() {
		t.Fatal("1x1 rejected")
	}
}
