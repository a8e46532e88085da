package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/client"
	"github.com/plansketch/plansketch/internal/geo"
	"github.com/plansketch/plansketch/internal/layer"
)

var testViewport = geo.Viewport{West: -1, South: -1, East: 1, North: 1}

func point(id string, lon, lat float64) *geojson.Feature {
	return &geojson.Feature{
		ID:       id,
		Geometry: geom.NewPointFlat(geom.XY, []float64{lon, lat}),
	}
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	if features == nil {
		features = []*geojson.Feature{}
	}
	return &geojson.FeatureCollection{Features: features}
}

func respond(t *testing.T, w http.ResponseWriter, fc *geojson.FeatureCollection) {
	t.Helper()
	w.Header().Set("Content-Type", "application/geo+json")
	require.NoError(t, json.NewEncoder(w).Encode(fc))
}

func newTestSession(t *testing.T, url string) *Session {
	t.Helper()
	draw := layer.NewDrawLayer()
	rendered := layer.NewRenderedLayer("features", "#2c7fb8")
	s := New(client.New(url), draw, rendered, Options{
		Scenario: "test-scenario",
		Debounce: 30 * time.Millisecond,
		Analyzer: analysis.New(5 * time.Millisecond),
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s
}

func featureIDs(features []*geojson.Feature) []string {
	ids := make([]string, 0, len(features))
	for _, f := range features {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestSyncViewportReplacesBothLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testViewport.BBox(), r.URL.Query().Get("bbox"))
		respond(t, w, collection(
			point("srv-1", 0, 0),
			point("", 0.5, 0.5), // backend returned no identifier
		))
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.SyncViewport(context.Background(), testViewport))

	drawn := s.Draw().Features()
	require.Len(t, drawn, 2)
	assert.Equal(t, "srv-1", drawn[0].ID)
	assert.NotEmpty(t, drawn[1].ID, "missing identifier gets synthesized")
	assert.NotEqual(t, drawn[0].ID, drawn[1].ID)

	// the rendered mirror agrees with the editable layer after sync
	assert.Equal(t, featureIDs(drawn), featureIDs(s.Rendered().Data().Features))
	assert.Equal(t, "loaded 2 features", s.Status())

	vp, ok := s.Viewport()
	assert.True(t, ok)
	assert.Equal(t, testViewport, vp)
}

func TestSyncViewportEmptyResponseClearsDrawLayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond(t, w, collection())
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.Draw().Add(point("local", 0, 0)))

	require.NoError(t, s.SyncViewport(context.Background(), testViewport))
	assert.Equal(t, 0, s.Draw().Len())
	assert.Empty(t, s.Rendered().Data().Features)
	assert.Equal(t, "loaded 0 features", s.Status())
}

func TestSyncViewportFailureLeavesStateUntouched(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		respond(t, w, collection(point("srv-1", 0, 0)))
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.SyncViewport(context.Background(), testViewport))
	require.Equal(t, 1, s.Draw().Len())

	fail.Store(true)
	err := s.SyncViewport(context.Background(), testViewport)
	require.Error(t, err)

	assert.Equal(t, 1, s.Draw().Len(), "editable set unchanged after failed fetch")
	assert.Equal(t, []string{"srv-1"}, featureIDs(s.Rendered().Data().Features))
	assert.Equal(t, "failed to load features", s.Status())
}

func TestSyncViewportDiscardsStaleResponse(t *testing.T) {
	firstArrived := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			close(firstArrived)
			<-release // hold the first response until the second applied
			respond(t, w, collection(point("stale", 0, 0)))
			return
		}
		respond(t, w, collection(point("fresh", 0, 0)))
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)

	done := make(chan error, 1)
	go func() { done <- s.SyncViewport(context.Background(), testViewport) }()

	<-firstArrived
	require.NoError(t, s.SyncViewport(context.Background(), testViewport))
	require.Equal(t, []string{"fresh"}, featureIDs(s.Draw().Features()))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"fresh"}, featureIDs(s.Draw().Features()),
		"response that lost the race must not apply")
	assert.Equal(t, []string{"fresh"}, featureIDs(s.Rendered().Data().Features))
}

func TestViewportSettledDebounces(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		respond(t, w, collection())
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	for i := 0; i < 5; i++ {
		s.ViewportSettled(testViewport)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 10*time.Millisecond)

	// trailing debounce means exactly one fetch for the burst
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSaveSendsWholeCollectionAndResyncs(t *testing.T) {
	var stored atomic.Pointer[geojson.FeatureCollection]
	stored.Store(collection())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/save":
			var fc geojson.FeatureCollection
			require.NoError(t, json.NewDecoder(r.Body).Decode(&fc))
			// backend assigns canonical identifiers on save
			for i, f := range fc.Features {
				f.ID = "srv-" + string(rune('a'+i))
			}
			stored.Store(&fc)
			w.WriteHeader(http.StatusOK)
		case "/api/features":
			respond(t, w, stored.Load())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.SyncViewport(context.Background(), testViewport))

	require.NoError(t, s.Draw().Add(point(geo.NewFeatureID(), 0, 0)))
	require.NoError(t, s.Draw().Add(point(geo.NewFeatureID(), 0.5, 0.5)))

	require.NoError(t, s.Save(context.Background()))

	drawn := s.Draw().Features()
	require.Len(t, drawn, 2)
	for _, f := range drawn {
		assert.True(t, strings.HasPrefix(f.ID, "srv-"),
			"synthesized identifier %q should be replaced by the backend's", f.ID)
	}
}

func TestSaveEmptyCollection(t *testing.T) {
	var savedEmpty atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/save":
			var fc geojson.FeatureCollection
			require.NoError(t, json.NewDecoder(r.Body).Decode(&fc))
			savedEmpty.Store(len(fc.Features) == 0)
			w.WriteHeader(http.StatusOK)
		case "/api/features":
			respond(t, w, collection())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.Save(context.Background()))
	assert.True(t, savedEmpty.Load(), "zero drawn features still sends an empty-collection payload")
}

func TestSaveFailureKeepsLocalState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/save" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		respond(t, w, collection())
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	require.NoError(t, s.Draw().Add(point("local-1", 0, 0)))

	err := s.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"local-1"}, featureIDs(s.Draw().Features()))
	assert.Equal(t, "failed to save features", s.Status())
}

func TestExportImportIdempotent(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")
	require.NoError(t, s.Draw().Add(&geojson.Feature{
		ID:         "a",
		Geometry:   geom.NewPointFlat(geom.XY, []float64{1, 2}),
		Properties: map[string]interface{}{"kind": "park"},
	}))
	require.NoError(t, s.Draw().Add(&geojson.Feature{
		ID:       "b",
		Geometry: geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}),
	}))

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	assert.Equal(t, "exported 2 features", s.Status())

	other := newTestSession(t, "http://backend.invalid")
	require.NoError(t, other.Import(bytes.NewReader(buf.Bytes())))

	assert.True(t, geo.SameFeatures(s.Draw().Collection(), other.Draw().Collection()),
		"export then import yields a set-equal collection")
	assert.Equal(t, "imported 2 features", other.Status())
}

func TestExportEmptyIsRefused(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")

	var buf bytes.Buffer
	err := s.Export(&buf)
	require.ErrorIs(t, err, ErrNothingToExport)
	assert.Zero(t, buf.Len())
	assert.Equal(t, "nothing to export", s.Status())
}

func TestExportFileNotCreatedWhenEmpty(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")
	path := t.TempDir() + "/out.geojson"

	require.ErrorIs(t, s.ExportFile(path), ErrNothingToExport)
	assert.NoFileExists(t, path)
	assert.Equal(t, "test-scenario.geojson", s.ExportName())
}

func TestImportInvalidFormatChangesNothing(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")
	require.NoError(t, s.Draw().Add(point("keep", 0, 0)))

	err := s.Import(strings.NewReader("{ this is not geojson"))
	require.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, []string{"keep"}, featureIDs(s.Draw().Features()))
	assert.Equal(t, "invalid file format", s.Status())
}

func TestImportReplacesContents(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")
	require.NoError(t, s.Draw().Add(point("old", 9, 9)))

	data, err := json.Marshal(collection(point("new-1", 0, 0), point("", 1, 1)))
	require.NoError(t, err)

	require.NoError(t, s.Import(bytes.NewReader(data)))

	drawn := s.Draw().Features()
	require.Len(t, drawn, 2)
	assert.Equal(t, "new-1", drawn[0].ID)
	assert.NotEmpty(t, drawn[1].ID)
	assert.NotContains(t, featureIDs(drawn), "old")
}

func TestAnalyzeRequiresFeatures(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")

	res, err := s.Analyze(context.Background())
	require.ErrorIs(t, err, analysis.ErrNoFeatures)
	assert.Nil(t, res)
	assert.Equal(t, "nothing to analyze", s.Status())
}

func TestAnalyzeReturnsFixedPayload(t *testing.T) {
	s := newTestSession(t, "http://backend.invalid")
	require.NoError(t, s.Draw().Add(point("a", 0, 0)))

	res, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 72, res.GreenSpace)
	assert.Equal(t, 64, res.Walkability)
	assert.Equal(t, 58, res.DensityBalance)
	assert.Equal(t, 81, res.TransitAccess)
	assert.NotEmpty(t, res.Recommendations)
	assert.Equal(t, "analysis complete", s.Status())
}
