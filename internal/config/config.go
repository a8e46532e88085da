// Package config handles scenario configuration loading and shared
// defaults for the editor, the backend and the tile builder.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the scenario file leaves fields unset.
const (
	DefaultDebounceMS      = 250
	DefaultAnalysisDelayMS = 2000
	DefaultTileSize        = 256
	DefaultZoomLimit       = 6
)

// Layer describes a presentational feature layer: a name, a display
// color and a visibility flag. Never persisted server-side.
type Layer struct {
	Name    string `yaml:"name" json:"name"`
	Color   string `yaml:"color" json:"color"`
	Visible *bool  `yaml:"visible,omitempty" json:"visible"`
}

// IsVisible treats an unset flag as visible.
func (l Layer) IsVisible() bool {
	return l.Visible == nil || *l.Visible
}

// Basemap describes the tile pyramid source for the scenario.
type Basemap struct {
	// Source is a local path or URL to a single plan/ortho image
	// that cmd/basemap slices into tiles.
	Source    string `yaml:"source,omitempty" json:"-"`
	TileSize  int    `yaml:"tile_size,omitempty" json:"tile_size"`
	ZoomLimit int    `yaml:"zoom,omitempty" json:"zoom"`
}

// Config is the root scenario file structure.
type Config struct {
	Scenario    string     `yaml:"scenario" json:"scenario"`
	Title       string     `yaml:"title,omitempty" json:"title"`
	Attribution string     `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Center      [2]float64 `yaml:"center,omitempty" json:"center"` // lon, lat
	Zoom        int        `yaml:"start_zoom,omitempty" json:"start_zoom"`

	// Backend is the feature API base URL. Empty means the embedded
	// backend served by cmd/server.
	Backend string `yaml:"backend,omitempty" json:"-"`

	DebounceMS      int `yaml:"debounce_ms,omitempty" json:"debounce_ms"`
	AnalysisDelayMS int `yaml:"analysis_delay_ms,omitempty" json:"-"`

	Layers  []Layer `yaml:"layers,omitempty" json:"layers"`
	Basemap Basemap `yaml:"basemap,omitempty" json:"basemap"`
}

// Load reads and parses the YAML scenario file from the given path and
// applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Scenario == "" {
		return fmt.Errorf("scenario name is required")
	}
	if c.Title == "" {
		c.Title = c.Scenario
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = DefaultDebounceMS
	}
	if c.AnalysisDelayMS <= 0 {
		c.AnalysisDelayMS = DefaultAnalysisDelayMS
	}
	if c.Basemap.TileSize <= 0 {
		c.Basemap.TileSize = DefaultTileSize
	}
	if c.Basemap.ZoomLimit <= 0 {
		c.Basemap.ZoomLimit = DefaultZoomLimit
	}
	if c.Zoom <= 0 {
		c.Zoom = 2
	}
	if len(c.Layers) == 0 {
		c.Layers = []Layer{{Name: "features", Color: "#2c7fb8"}}
	}
	return nil
}

// Debounce returns the viewport settle debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// AnalysisDelay returns the simulated analysis latency as a duration.
func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.AnalysisDelayMS) * time.Millisecond
}
