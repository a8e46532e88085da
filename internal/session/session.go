// Package session implements the editor's reconciliation logic:
// viewport-synchronized feature loading, the draw-to-rendered mirror,
// whole-collection save, file export/import and the placeholder
// analysis path. A Session owns the view state explicitly instead of
// holding it in package globals.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/client"
	"github.com/plansketch/plansketch/internal/geo"
	"github.com/plansketch/plansketch/internal/layer"
)

// DefaultDebounce is the trailing delay after the last pan/zoom settle
// event before a viewport sync fires.
const DefaultDebounce = 250 * time.Millisecond

// Sentinel errors surfaced as user-facing refusals rather than
// transport failures.
var (
	ErrNothingToExport = errors.New("nothing to export")
	ErrInvalidFormat   = errors.New("invalid file format")
)

// Options configures a Session.
type Options struct {
	Scenario string
	Debounce time.Duration
	Analyzer *analysis.Analyzer
	Logger   zerolog.Logger
}

// Session ties the backend client to the editable drawing layer and
// its rendered mirror, and keeps the one-line status the UI shows.
type Session struct {
	client   *client.Client
	draw     *layer.DrawLayer
	rendered *layer.RenderedLayer
	analyzer *analysis.Analyzer
	log      zerolog.Logger
	scenario string
	debounce time.Duration

	mu          sync.Mutex
	viewport    geo.Viewport
	hasViewport bool
	status      string
	timer       *time.Timer
	syncSeq     uint64
}

// New wires a session around the given client and layers, and installs
// the one-directional draw-to-rendered mirror.
func New(c *client.Client, draw *layer.DrawLayer, rendered *layer.RenderedLayer, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.New(analysis.DefaultDelay)
	}
	if opts.Scenario == "" {
		opts.Scenario = "scenario"
	}

	layer.Mirror(draw, rendered)

	return &Session{
		client:   c,
		draw:     draw,
		rendered: rendered,
		analyzer: opts.Analyzer,
		log:      opts.Logger,
		scenario: opts.Scenario,
		debounce: opts.Debounce,
	}
}

// Status returns the last user-facing status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Viewport returns the last settled viewport, if any.
func (s *Session) Viewport() (geo.Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, s.hasViewport
}

// Draw returns the editable layer.
func (s *Session) Draw() *layer.DrawLayer { return s.draw }

// Rendered returns the mirrored rendered layer.
func (s *Session) Rendered() *layer.RenderedLayer { return s.rendered }

// Close cancels any pending debounced sync.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
}

// ViewportSettled records a pan/zoom settle event. Syncs are coalesced
// with a trailing debounce: a single pending timer is cancelled and
// rescheduled on every settle.
func (s *Session) ViewportSettled(vp geo.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewport = vp
	s.hasViewport = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		_ = s.SyncViewport(context.Background(), vp)
	})
}

// SyncViewport fetches the features intersecting the viewport,
// replaces the rendered layer's data and reconciles the editable layer
// to match (delete-all, re-add, synthesizing identifiers where the
// backend assigned none). On failure both layers keep their previous
// contents. A response that arrives after a newer sync has started is
// discarded rather than applied stale.
func (s *Session) SyncViewport(ctx context.Context, vp geo.Viewport) error {
	s.mu.Lock()
	s.syncSeq++
	gen := s.syncSeq
	s.viewport = vp
	s.hasViewport = true
	s.mu.Unlock()

	fc, err := s.client.FetchFeatures(ctx, vp)
	if err != nil {
		s.log.Error().Err(err).Str("bbox", vp.BBox()).Msg("Viewport sync failed")
		s.setStatus("failed to load features")
		return err
	}

	s.mu.Lock()
	if gen != s.syncSeq {
		s.mu.Unlock()
		s.log.Debug().Str("bbox", vp.BBox()).Msg("Discarding superseded viewport response")
		return nil
	}
	s.reconcile(fc)
	s.mu.Unlock()

	n := len(fc.Features)
	s.setStatus(fmt.Sprintf("loaded %d features", n))
	s.log.Info().Str("bbox", vp.BBox()).Int("features", n).Msg("Viewport synced")
	return nil
}

// reconcile applies a fetched collection to both layers. An empty
// collection clears the editable layer entirely; that is valid, not an
// error. Caller holds s.mu.
func (s *Session) reconcile(fc *geojson.FeatureCollection) {
	s.rendered.SetData(fc)

	geo.EnsureIDs(fc)
	s.draw.DeleteAll()
	for _, f := range fc.Features {
		if err := s.draw.Add(f); err != nil {
			s.log.Warn().Err(err).Msg("Draw layer rejected fetched feature")
		}
	}
}

// Save uploads the entire drawing layer as a replacement payload. An
// empty set is still sent. On success the current viewport is resynced
// so canonical backend-assigned identifiers replace synthesized ones.
// On failure local state is untouched.
func (s *Session) Save(ctx context.Context) error {
	fc := s.draw.Collection()

	if err := s.client.SaveFeatures(ctx, fc); err != nil {
		s.log.Error().Err(err).Int("features", len(fc.Features)).Msg("Save failed")
		s.setStatus("failed to save features")
		return err
	}

	s.setStatus(fmt.Sprintf("saved %d features", len(fc.Features)))
	s.log.Info().Int("features", len(fc.Features)).Msg("Collection saved")

	s.mu.Lock()
	vp, ok := s.viewport, s.hasViewport
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.SyncViewport(ctx, vp)
}

// Analyze runs the placeholder scorer over the current drawing layer.
// With nothing drawn it performs no work.
func (s *Session) Analyze(ctx context.Context) (*analysis.Result, error) {
	fc := s.draw.Collection()
	if len(fc.Features) == 0 {
		s.setStatus("nothing to analyze")
		return nil, analysis.ErrNoFeatures
	}

	res, err := s.analyzer.Analyze(ctx, fc)
	if err != nil {
		s.setStatus("analysis failed")
		return nil, err
	}

	s.setStatus("analysis complete")
	return res, nil
}
