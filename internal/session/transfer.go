package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/geo"
)

// ExportName is the suggested filename for the downloadable artifact.
func (s *Session) ExportName() string {
	return s.scenario + ".geojson"
}

// Export writes the drawing layer as a pretty-printed feature
// collection. An empty set is refused with ErrNothingToExport,
// reported as "nothing to export" rather than a failure.
func (s *Session) Export(w io.Writer) error {
	fc := s.draw.Collection()
	if len(fc.Features) == 0 {
		s.setStatus("nothing to export")
		return ErrNothingToExport
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	s.setStatus(fmt.Sprintf("exported %d features", len(fc.Features)))
	return nil
}

// ExportFile writes the export artifact to disk. The file is not
// created when there is nothing to export.
func (s *Session) ExportFile(path string) error {
	if s.draw.Len() == 0 {
		s.setStatus("nothing to export")
		return ErrNothingToExport
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.Error().Err(closeErr).Str("path", path).Msg("Failed to close export file")
		}
	}()

	return s.Export(f)
}

// Import parses the reader as a feature collection. A malformed file
// changes nothing; a valid one replaces the drawing layer's contents.
// Features the widget rejects are skipped and counted, not fatal.
func (s *Session) Import(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		s.log.Error().Err(err).Msg("Import rejected: malformed feature collection")
		s.setStatus("invalid file format")
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	geo.EnsureIDs(&fc)

	s.draw.DeleteAll()
	skipped := 0
	for _, f := range fc.Features {
		if err := s.draw.Add(f); err != nil {
			skipped++
			s.log.Warn().Err(err).Msg("Draw layer rejected imported feature")
		}
	}

	added := len(fc.Features) - skipped
	if skipped > 0 {
		s.setStatus(fmt.Sprintf("imported %d features (%d skipped)", added, skipped))
	} else {
		s.setStatus(fmt.Sprintf("imported %d features", added))
	}
	s.log.Info().Int("features", added).Int("skipped", skipped).Msg("Collection imported")
	return nil
}
