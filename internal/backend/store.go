// Package backend is the demo feature service the editor runs
// against: a sqlite-backed store and the two-call HTTP API (plus the
// scenario bootstrap and the placeholder analysis endpoint).
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/plansketch/plansketch/internal/geo"
)

// Store persists one feature collection per scenario. Saves are
// whole-collection overwrites; features are never partially mutated.
type Store struct {
	db *sql.DB
}

const migration = `
CREATE TABLE IF NOT EXISTS features (
	scenario TEXT NOT NULL,
	id       TEXT NOT NULL,
	feature  TEXT NOT NULL,
	west     REAL NOT NULL,
	south    REAL NOT NULL,
	east     REAL NOT NULL,
	north    REAL NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (scenario, id)
);

CREATE INDEX IF NOT EXISTS idx_features_bounds
	ON features(scenario, west, east, south, north);
`

// OpenStore opens (or creates) the sqlite database at path, switches
// it to WAL mode and applies the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace overwrites the scenario's entire collection inside one
// transaction. Features saved without an identifier get a canonical
// backend-assigned one.
func (s *Store) Replace(ctx context.Context, scenario string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = &geojson.FeatureCollection{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE scenario = ?`, scenario); err != nil {
		return fmt.Errorf("store: clear scenario %s: %w", scenario, err)
	}

	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return fmt.Errorf("store: feature %d has no geometry", i)
		}
		if f.ID == "" {
			f.ID = uuid.New().String()
		}

		b := f.Geometry.Bounds()

		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("store: encode feature %s: %w", f.ID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO features (scenario, id, feature, west, south, east, north, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			scenario, f.ID, string(data),
			b.Min(0), b.Min(1), b.Max(0), b.Max(1), i,
		)
		if err != nil {
			return fmt.Errorf("store: insert feature %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// FeaturesInView returns the scenario's features whose bounding box
// overlaps the viewport, in stored order.
func (s *Store) FeaturesInView(ctx context.Context, scenario string, vp geo.Viewport) (*geojson.FeatureCollection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature FROM features
		 WHERE scenario = ? AND west <= ? AND east >= ? AND south <= ? AND north >= ?
		 ORDER BY position`,
		scenario, vp.East, vp.West, vp.North, vp.South,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query scenario %s: %w", scenario, err)
	}
	defer func() { _ = rows.Close() }()

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}

		var f geojson.Feature
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, fmt.Errorf("store: decode feature: %w", err)
		}
		fc.Features = append(fc.Features, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}

	return fc, nil
}

// Count reports how many features the scenario holds.
func (s *Store) Count(ctx context.Context, scenario string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM features WHERE scenario = ?`, scenario,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count scenario %s: %w", scenario, err)
	}
	return n, nil
}
