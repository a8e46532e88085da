// Package layer models the two feature layers the editor works with:
// the editable drawing layer (the interactive widget's working set)
// and the rendered layer (the read-only mirror drawn on the basemap).
package layer

import (
	"fmt"
	"sync"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// EventKind classifies a drawing layer change.
type EventKind int

const (
	EventCreate EventKind = iota
	EventUpdate
	EventDelete
	EventReplace
)

// Event carries a full snapshot of the drawing layer after a change.
// Subscribers run synchronously on the mutating goroutine.
type Event struct {
	Kind     EventKind
	Features []*geojson.Feature
}

// DrawLayer is the editable working set. Features keep insertion
// order, though order carries no meaning across reloads.
type DrawLayer struct {
	mu       sync.Mutex
	order    []string
	features map[string]*geojson.Feature
	subs     []func(Event)
}

// NewDrawLayer returns an empty drawing layer.
func NewDrawLayer() *DrawLayer {
	return &DrawLayer{features: make(map[string]*geojson.Feature)}
}

// Subscribe registers a change listener. There is no unsubscribe; the
// layer and its listeners share the session's lifetime.
func (l *DrawLayer) Subscribe(fn func(Event)) {
	l.mu.Lock()
	l.subs = append(l.subs, fn)
	l.mu.Unlock()
}

// Add inserts a feature. The widget rejects features without an
// identifier or geometry.
func (l *DrawLayer) Add(f *geojson.Feature) error {
	if f == nil || f.Geometry == nil {
		return fmt.Errorf("draw layer: feature has no geometry")
	}
	if f.ID == "" {
		return fmt.Errorf("draw layer: feature has no identifier")
	}

	l.mu.Lock()
	if _, dup := l.features[f.ID]; dup {
		l.mu.Unlock()
		return fmt.Errorf("draw layer: duplicate feature %q", f.ID)
	}
	l.features[f.ID] = f
	l.order = append(l.order, f.ID)
	snap, subs := l.snapshotLocked()
	l.mu.Unlock()

	notify(subs, Event{Kind: EventCreate, Features: snap})
	return nil
}

// Update replaces a feature in place, keeping its position.
func (l *DrawLayer) Update(f *geojson.Feature) error {
	if f == nil || f.Geometry == nil {
		return fmt.Errorf("draw layer: feature has no geometry")
	}

	l.mu.Lock()
	if _, ok := l.features[f.ID]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("draw layer: unknown feature %q", f.ID)
	}
	l.features[f.ID] = f
	snap, subs := l.snapshotLocked()
	l.mu.Unlock()

	notify(subs, Event{Kind: EventUpdate, Features: snap})
	return nil
}

// Delete removes a feature by identifier.
func (l *DrawLayer) Delete(id string) error {
	l.mu.Lock()
	if _, ok := l.features[id]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("draw layer: unknown feature %q", id)
	}
	delete(l.features, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	snap, subs := l.snapshotLocked()
	l.mu.Unlock()

	notify(subs, Event{Kind: EventDelete, Features: snap})
	return nil
}

// DeleteAll empties the layer.
func (l *DrawLayer) DeleteAll() {
	l.mu.Lock()
	l.features = make(map[string]*geojson.Feature)
	l.order = nil
	snap, subs := l.snapshotLocked()
	l.mu.Unlock()

	notify(subs, Event{Kind: EventReplace, Features: snap})
}

// Features returns a snapshot of the current feature set in order.
func (l *DrawLayer) Features() []*geojson.Feature {
	l.mu.Lock()
	snap, _ := l.snapshotLocked()
	l.mu.Unlock()
	return snap
}

// Collection wraps the current snapshot as a feature collection.
func (l *DrawLayer) Collection() *geojson.FeatureCollection {
	return &geojson.FeatureCollection{Features: l.Features()}
}

// Len reports the number of features held.
func (l *DrawLayer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func (l *DrawLayer) snapshotLocked() ([]*geojson.Feature, []func(Event)) {
	snap := make([]*geojson.Feature, 0, len(l.order))
	for _, id := range l.order {
		snap = append(snap, l.features[id])
	}
	return snap, l.subs
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
