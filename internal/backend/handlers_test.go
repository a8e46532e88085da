package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/config"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	store := openTestStore(t)
	cfg := &config.Config{Scenario: "demo", Title: "Demo"}
	h := NewHandler(store, cfg, analysis.New(5*time.Millisecond))

	srv := httptest.NewServer(h.Routes(1000, 1000))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandleHealth(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHandleScenario(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/scenario")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got config.Config
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "demo", got.Scenario)
	assert.Equal(t, "Demo", got.Title)
}

func TestHandleFeaturesRequiresBBox(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/features")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleFeaturesRejectsBadBBox(t *testing.T) {
	srv := newTestAPI(t)

	for _, bbox := range []string{"nope", "1,2,3", "10,-5,-10,5"} {
		resp, err := http.Get(srv.URL + "/features?bbox=" + bbox)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "bbox %q", bbox)
	}
}

func TestSaveThenFetchRoundTrip(t *testing.T) {
	srv := newTestAPI(t)

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{
		point("a", 0.5, 0.5),
		point("", 0.6, 0.6),
	}}
	resp := postJSON(t, srv.URL+"/save", fc)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var saved struct {
		Status   string `json:"status"`
		Features int    `json:"features"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, "ok", saved.Status)
	assert.Equal(t, 2, saved.Features)

	get, err := http.Get(srv.URL + "/features?bbox=0,0,1,1")
	require.NoError(t, err)
	defer func() { _ = get.Body.Close() }()
	require.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "application/geo+json", get.Header.Get("Content-Type"))

	var got geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(get.Body).Decode(&got))
	require.Len(t, got.Features, 2)
	assert.Equal(t, "a", got.Features[0].ID)
	assert.NotEmpty(t, got.Features[1].ID, "save assigns missing identifiers")
}

func TestHandleFeaturesEmptyScenario(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/features?bbox=-180,-90,180,90")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	// empty result still carries a features array, not null
	assert.Contains(t, body.String(), `"features":[]`)
}

func TestHandleSaveRejectsMalformedBody(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Post(srv.URL+"/save", "application/json",
		strings.NewReader("{ not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAnalyze(t *testing.T) {
	srv := newTestAPI(t)

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{point("a", 0, 0)}}
	resp := postJSON(t, srv.URL+"/analyze", fc)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res analysis.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 72, res.GreenSpace)
	assert.Equal(t, 81, res.TransitAccess)
	assert.NotEmpty(t, res.Recommendations)
}

func TestHandleAnalyzeEmpty(t *testing.T) {
	srv := newTestAPI(t)

	resp := postJSON(t, srv.URL+"/analyze", &geojson.FeatureCollection{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitKicksIn(t *testing.T) {
	store := openTestStore(t)
	cfg := &config.Config{Scenario: "demo"}
	h := NewHandler(store, cfg, analysis.New(time.Millisecond))

	srv := httptest.NewServer(h.Routes(1, 1))
	defer srv.Close()

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst over the limit should get a 429")
}
