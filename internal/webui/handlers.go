package webui

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const etagCap = 64

// HandleIndex serves the assembled editor page.
func (s *PageServer) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	if match := r.Header.Get("If-None-Match"); match == s.indexETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", s.indexETag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.indexHTML)
}

// HandleTile serves a basemap tile from the pyramid on disk; missing
// tiles fall back to the transparent tile so the map stays usable
// beyond the rendered extent.
func (s *PageServer) HandleTile(w http.ResponseWriter, r *http.Request) {
	z := chi.URLParam(r, "z")
	x := chi.URLParam(r, "x")
	y := strings.TrimSuffix(chi.URLParam(r, "y"), ".webp")

	// allow only numeric coordinates to prevent path probing
	for _, part := range []string{z, x, y} {
		if _, err := strconv.Atoi(part); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	path := filepath.Join(s.tilesDir, s.cfg.Scenario, z, x, y+".webp")
	if s.serveFile(w, r, path, "image/webp") {
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.transparentTile)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *PageServer) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}
