package layer

import (
	"sync"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// RenderedLayer is the read-only visual representation of features on
// the map: a name, a display color, a visibility flag and the data
// currently rendered. Purely presentational, never persisted.
type RenderedLayer struct {
	mu      sync.Mutex
	name    string
	color   string
	visible bool
	data    *geojson.FeatureCollection
}

// NewRenderedLayer returns a visible layer with no data.
func NewRenderedLayer(name, color string) *RenderedLayer {
	return &RenderedLayer{
		name:    name,
		color:   color,
		visible: true,
		data:    &geojson.FeatureCollection{},
	}
}

// Name returns the layer name.
func (l *RenderedLayer) Name() string { return l.name }

// Color returns the display color.
func (l *RenderedLayer) Color() string { return l.color }

// Visible reports whether the layer is shown.
func (l *RenderedLayer) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

// SetVisible toggles the layer.
func (l *RenderedLayer) SetVisible(v bool) {
	l.mu.Lock()
	l.visible = v
	l.mu.Unlock()
}

// SetData replaces the rendered feature data wholesale.
func (l *RenderedLayer) SetData(fc *geojson.FeatureCollection) {
	if fc == nil {
		fc = &geojson.FeatureCollection{}
	}
	l.mu.Lock()
	l.data = fc
	l.mu.Unlock()
}

// Data returns the currently rendered collection. The features slice
// is copied so callers cannot mutate the layer through it.
func (l *RenderedLayer) Data() *geojson.FeatureCollection {
	l.mu.Lock()
	defer l.mu.Unlock()

	features := make([]*geojson.Feature, len(l.data.Features))
	copy(features, l.data.Features)
	return &geojson.FeatureCollection{Features: features}
}

// Mirror republishes every drawing layer change into the rendered
// layer: one-directional, synchronous, no network effect.
func Mirror(draw *DrawLayer, rendered *RenderedLayer) {
	draw.Subscribe(func(ev Event) {
		rendered.SetData(&geojson.FeatureCollection{Features: ev.Features})
	})
}
