// Package render maps normalized map coordinates onto a concrete viewport.
package render

import "transit-map/internal/transit"

// Viewport is the pixel size of a client's drawing surface.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (vp Viewport) Valid() bool { return vp.Width > 0 && vp.Height > 0 }

type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Project converts a point given in percent of the viewport to pixels. It is
// cheap and is called again for every frame, so a resized viewport never sees
// stale coordinates.
func Project(p transit.Point, vp Viewport) Pixel {
	return Pixel{
		X: p.X / 100 * vp.Width,
		Y: p.Y / 100 * vp.Height,
	}
}

// ProjectAll projects points in order.
func ProjectAll(pts []transit.Point, vp Viewport) []Pixel {
	out := make([]Pixel, len(pts))
	for i, p := range pts {
		out[i] = Project(p, vp)
	}
	return out
}
