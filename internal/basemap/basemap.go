// Package basemap slices a single plan or ortho image into the webp
// tile pyramid the web UI serves. The source can be a local file or a
// URL; each zoom level is rescaled from the original so quality is
// preserved across the pyramid.
package basemap

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Builder holds the tiling policy.
type Builder struct {
	Client   *http.Client
	TileSize int
	Quality  float32
	Workers  int
}

// NewBuilder returns a builder with sane defaults filled in.
func NewBuilder(client *http.Client) *Builder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Builder{
		Client:   client,
		TileSize: 256,
		Quality:  85,
		Workers:  20,
	}
}

// TilePath returns the on-disk location of one pyramid tile.
func TilePath(baseDir string, z, x, y int) string {
	return filepath.Join(baseDir,
		fmt.Sprintf("%d", z),
		fmt.Sprintf("%d", x),
		fmt.Sprintf("%d", y)+".webp",
	)
}

// Build slices the source image into a pyramid under destDir, one
// grid of 2^z by 2^z tiles per zoom level up to zoomLimit. Existing
// non-empty tiles are kept unless force is set.
func (b *Builder) Build(source, destDir string, zoomLimit int, force bool) error {
	srcImg, err := b.loadSource(source)
	if err != nil {
		return err
	}

	bounds := srcImg.Bounds()
	log.Info().
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("zoom_limit", zoomLimit).
		Msg("Source image loaded, starting tiling")

	for z := 0; z <= zoomLimit; z++ {
		if err := b.buildLevel(srcImg, destDir, z, force); err != nil {
			return fmt.Errorf("zoom %d: %w", z, err)
		}
	}

	return nil
}

// buildLevel rescales the source to the level's pixel grid and writes
// every tile, bounding file I/O concurrency with a semaphore.
func (b *Builder) buildLevel(src image.Image, destDir string, z int, force bool) error {
	gridSize := 1 << z
	totalPixels := gridSize * b.TileSize

	log.Debug().
		Int("zoom", z).
		Int("grid", gridSize).
		Int("px", totalPixels).
		Msg("Processing zoom level")

	// CatmullRom keeps downscaled plan linework readable; resizing
	// from the original at every level avoids compounding artifacts.
	dst := image.NewRGBA(image.Rect(0, 0, totalPixels, totalPixels))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var wg sync.WaitGroup
	sem := make(chan struct{}, b.Workers)
	errCh := make(chan error, 1)

	for x := 0; x < gridSize; x++ {
		for y := 0; y < gridSize; y++ {
			wg.Add(1)
			sem <- struct{}{}

			go func(tx, ty int) {
				defer wg.Done()
				defer func() { <-sem }()

				rect := image.Rect(tx*b.TileSize, ty*b.TileSize, (tx+1)*b.TileSize, (ty+1)*b.TileSize)
				if err := b.writeTile(dst.SubImage(rect), destDir, z, tx, ty, force); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}(x, y)
		}
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (b *Builder) writeTile(img image.Image, destDir string, z, x, y int, force bool) error {
	outPath := TilePath(destDir, z, x, y)

	if !force {
		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create tile dir: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create tile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := webp.Encode(f, img, &webp.Options{Lossless: false, Quality: b.Quality}); err != nil {
		return fmt.Errorf("encode tile %d/%d/%d: %w", z, x, y, err)
	}

	return nil
}

// loadSource decodes the plan image from a URL or a local path.
func (b *Builder) loadSource(source string) (image.Image, error) {
	var reader io.Reader

	if strings.HasPrefix(source, "http") {
		log.Info().Str("url", source).Msg("Downloading source image")
		resp, err := b.Client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("download source: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download source: status %d", resp.StatusCode)
		}

		// Buffer the body; some decoders need to seek.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		reader = bytes.NewReader(body)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		defer func() { _ = f.Close() }()

		reader = f
	}

	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	log.Info().Str("format", format).Msg("Source image decoded")
	return img, nil
}
