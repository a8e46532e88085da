// Package geo holds the feature model and viewport math shared by the
// editor session, the backend and the web UI.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Viewport is the currently visible geographic rectangle,
// west/south/east/north in decimal degrees (lon/lat).
type Viewport struct {
	West  float64
	South float64
	East  float64
	North float64
}

// BBox renders the viewport in the wire order "west,south,east,north".
func (v Viewport) BBox() string {
	parts := [4]float64{v.West, v.South, v.East, v.North}
	out := make([]string, 0, 4)
	for _, p := range parts {
		out = append(out, strconv.FormatFloat(p, 'f', -1, 64))
	}
	return strings.Join(out, ",")
}

// ParseBBox parses a "west,south,east,north" string into a Viewport.
func ParseBBox(s string) (Viewport, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Viewport{}, fmt.Errorf("bbox %q: want 4 comma-separated values, got %d", s, len(parts))
	}

	vals := [4]float64{}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Viewport{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		vals[i] = f
	}

	v := Viewport{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if v.West >= v.East || v.South >= v.North {
		return Viewport{}, fmt.Errorf("bbox %q: empty extent", s)
	}

	return v, nil
}

// Bounds returns the viewport as geometry bounds.
func (v Viewport) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(v.West, v.South, v.East, v.North)
}

// Intersects reports whether the geometry's bounding box overlaps the
// viewport. Shared edges count as intersecting.
func (v Viewport) Intersects(g geom.T) bool {
	if g == nil {
		return false
	}
	return v.Bounds().Overlaps(geom.XY, g.Bounds())
}
