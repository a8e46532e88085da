// Package analysis holds the placeholder plan scorer. It returns a
// fixed payload after a simulated delay; a stand-in for an analysis
// engine that does not exist yet, unrelated to the drawn geometry.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// ErrNoFeatures is returned when there is nothing to analyze.
var ErrNoFeatures = errors.New("nothing to analyze")

// DefaultDelay is the simulated analysis latency.
const DefaultDelay = 2 * time.Second

// Recommendation is a single categorized suggestion.
type Recommendation struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Result carries four category scores (0-100) and recommendations.
type Result struct {
	GreenSpace      int              `json:"green_space"`
	Walkability     int              `json:"walkability"`
	DensityBalance  int              `json:"density_balance"`
	TransitAccess   int              `json:"transit_access"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Analyzer simulates a scoring run.
type Analyzer struct {
	delay time.Duration
}

// New returns an analyzer with the given simulated latency; a
// non-positive delay falls back to DefaultDelay.
func New(delay time.Duration) *Analyzer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Analyzer{delay: delay}
}

// Analyze requires at least one feature, waits out the simulated
// latency (or the context) and returns the fixed scoring payload.
func (a *Analyzer) Analyze(ctx context.Context, fc *geojson.FeatureCollection) (*Result, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, ErrNoFeatures
	}

	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &Result{
		GreenSpace:     72,
		Walkability:    64,
		DensityBalance: 58,
		TransitAccess:  81,
		Recommendations: []Recommendation{
			{Category: "green_space", Text: "Connect the drawn parks with a continuous greenway along the waterfront."},
			{Category: "walkability", Text: "Shorten block lengths in the central district to improve pedestrian permeability."},
			{Category: "density_balance", Text: "Shift mid-rise housing toward the transit corridor to even out density."},
			{Category: "transit_access", Text: "Reserve the marked right-of-way for a future tram alignment."},
		},
	}, nil
}
