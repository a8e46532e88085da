package backend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/config"
	"github.com/plansketch/plansketch/internal/geo"
)

// Handler serves the feature API for one scenario.
type Handler struct {
	store    *Store
	cfg      *config.Config
	analyzer *analysis.Analyzer
}

// NewHandler builds the API handler around a store and the scenario
// configuration.
func NewHandler(store *Store, cfg *config.Config, analyzer *analysis.Analyzer) *Handler {
	return &Handler{store: store, cfg: cfg, analyzer: analyzer}
}

// Routes returns the API router, intended to be mounted under /api.
// The rate limit applies to the whole API surface.
func (h *Handler) Routes(ratePerSec float64, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(RateLimit(ratePerSec, burst))

	r.Get("/health", h.handleHealth)
	r.Get("/scenario", h.handleScenario)
	r.Get("/features", h.handleFeatures)
	r.Post("/save", h.handleSave)
	r.Post("/analyze", h.handleAnalyze)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenario serves the page bootstrap: scenario identity, start
// camera, layers and the debounce policy.
func (h *Handler) handleScenario(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.cfg)
}

// handleFeatures returns the features intersecting ?bbox=w,s,e,n.
func (h *Handler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	bbox := r.URL.Query().Get("bbox")
	if bbox == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "bbox query parameter is required"})
		return
	}

	vp, err := geo.ParseBBox(bbox)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bbox"})
		return
	}

	fc, err := h.store.FeaturesInView(r.Context(), h.cfg.Scenario, vp)
	if err != nil {
		log.Error().Err(err).Str("bbox", bbox).Msg("Feature query failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "feature query failed"})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(fc)
}

// handleSave replaces the scenario's collection wholesale. There is no
// diffing and no partial-success semantics.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid feature collection"})
		return
	}

	if err := h.store.Replace(r.Context(), h.cfg.Scenario, &fc); err != nil {
		log.Error().Err(err).Int("features", len(fc.Features)).Msg("Save failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
		return
	}

	log.Info().Int("features", len(fc.Features)).Str("scenario", h.cfg.Scenario).Msg("Collection saved")
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "features": len(fc.Features)})
}

// handleAnalyze exposes the placeholder scorer to the page.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid feature collection"})
		return
	}

	res, err := h.analyzer.Analyze(r.Context(), &fc)
	if err != nil {
		if errors.Is(err, analysis.ErrNoFeatures) {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to analyze"})
			return
		}
		log.Error().Err(err).Msg("Analysis failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "analysis failed"})
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(payload)
}
