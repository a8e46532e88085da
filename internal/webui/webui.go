// Package webui serves the editor page and the basemap tile pyramid.
package webui

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"

	"github.com/plansketch/plansketch/internal/config"
)

// PageServer holds the dependencies of the page and tile handlers.
type PageServer struct {
	cfg             *config.Config
	tilesDir        string
	indexHTML       []byte
	indexETag       string
	transparentTile []byte
}

// NewPageServer assembles the minified page and the fallback tile.
func NewPageServer(cfg *config.Config, tilesDir string) (*PageServer, error) {
	html, err := BuildIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("webui: build index: %w", err)
	}

	tile, err := transparentTile(cfg.Basemap.TileSize)
	if err != nil {
		return nil, fmt.Errorf("webui: build fallback tile: %w", err)
	}

	return &PageServer{
		cfg:             cfg,
		tilesDir:        tilesDir,
		indexHTML:       html,
		indexETag:       fmt.Sprintf(`"%x"`, len(html)),
		transparentTile: tile,
	}, nil
}

// transparentTile encodes a fully transparent webp tile served in
// place of missing pyramid tiles.
func transparentTile(size int) ([]byte, error) {
	if size <= 0 {
		size = config.DefaultTileSize
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
