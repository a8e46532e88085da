package geo

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// NewFeatureID synthesizes a client-side feature identifier. The
// backend assigns canonical identifiers on save; this one only has to
// be unique enough for the drawing widget to track the feature until
// the next save replaces it.
func NewFeatureID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("draw-%d-%x", time.Now().UnixMilli(), buf)
}

// EnsureIDs assigns a synthesized identifier to every feature in the
// collection that lacks one. Identifiers are unique within the
// collection even when the clock does not advance between calls.
// Returns the number of identifiers assigned.
func EnsureIDs(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}

	seen := make(map[string]struct{}, len(fc.Features))
	for _, f := range fc.Features {
		if f != nil && f.ID != "" {
			seen[f.ID] = struct{}{}
		}
	}

	assigned := 0
	for _, f := range fc.Features {
		if f == nil || f.ID != "" {
			continue
		}
		id := NewFeatureID()
		for {
			if _, dup := seen[id]; !dup {
				break
			}
			id = NewFeatureID()
		}
		f.ID = id
		seen[id] = struct{}{}
		assigned++
	}

	return assigned
}

// featureKey builds an identifier-insensitive comparison key from a
// feature's geometry and properties. Property maps marshal with sorted
// keys, so the key is deterministic.
func featureKey(f *geojson.Feature) (string, error) {
	if f == nil || f.Geometry == nil {
		return "", fmt.Errorf("feature has no geometry")
	}

	g, err := geojson.Marshal(f.Geometry)
	if err != nil {
		return "", fmt.Errorf("encode geometry: %w", err)
	}

	p, err := json.Marshal(f.Properties)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}

	return string(g) + "|" + string(p), nil
}

// SameFeatures reports whether two collections hold the same features
// by geometry and properties, ignoring identifiers and order.
func SameFeatures(a, b *geojson.FeatureCollection) bool {
	var fa, fb []*geojson.Feature
	if a != nil {
		fa = a.Features
	}
	if b != nil {
		fb = b.Features
	}
	if len(fa) != len(fb) {
		return false
	}

	counts := make(map[string]int, len(fa))
	for _, f := range fa {
		k, err := featureKey(f)
		if err != nil {
			return false
		}
		counts[k]++
	}
	for _, f := range fb {
		k, err := featureKey(f)
		if err != nil {
			return false
		}
		counts[k]--
		if counts[k] < 0 {
			return false
		}
	}

	return true
}
