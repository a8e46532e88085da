// sketch drives an editor session headlessly against a running
// backend: pull a viewport, push a file, export the working set or run
// the analysis, without a browser.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/client"
	"github.com/plansketch/plansketch/internal/config"
	"github.com/plansketch/plansketch/internal/geo"
	"github.com/plansketch/plansketch/internal/layer"
	"github.com/plansketch/plansketch/internal/logger"
	"github.com/plansketch/plansketch/internal/session"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"  env:"CONFIG_FILE" description:"Path to scenario file"                default:"scenario.yaml"`
	Backend    string `short:"b" long:"backend" env:"BACKEND"     description:"Backend base URL (overrides scenario)"`

	Sync    string `long:"sync"    description:"Sync a viewport first, as west,south,east,north"`
	Import  string `long:"import"  description:"Replace the working set from a feature collection file"`
	Save    bool   `long:"save"    description:"Save the working set to the backend"`
	Analyze bool   `long:"analyze" description:"Run the plan analysis and print the result"`
	Export  string `long:"export"  description:"Export the working set to a file ('' for <scenario>.geojson)" optional:"true" optional-value:"-"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario configuration")
	}

	base := cfg.Backend
	if opts.Backend != "" {
		base = opts.Backend
	}
	if base == "" {
		base = "http://127.0.0.1:8080"
	}

	draw := layer.NewDrawLayer()
	rendered := layer.NewRenderedLayer(cfg.Layers[0].Name, cfg.Layers[0].Color)

	sess := session.New(client.New(base), draw, rendered, session.Options{
		Scenario: cfg.Scenario,
		Debounce: cfg.Debounce(),
		Analyzer: analysis.New(cfg.AnalysisDelay()),
		Logger:   log.Logger,
	})
	defer sess.Close()

	ctx := context.Background()

	if opts.Sync != "" {
		vp, err := geo.ParseBBox(opts.Sync)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --sync viewport")
		}
		if err := sess.SyncViewport(ctx, vp); err != nil {
			log.Fatal().Err(err).Msg("Viewport sync failed")
		}
	}

	if opts.Import != "" {
		f, err := os.Open(opts.Import)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open import file")
		}
		err = sess.Import(f)
		_ = f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("status", sess.Status()).Msg("Import failed")
		}
	}

	if opts.Save {
		if err := sess.Save(ctx); err != nil {
			log.Fatal().Err(err).Msg("Save failed")
		}
	}

	if opts.Analyze {
		res, err := sess.Analyze(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("status", sess.Status()).Msg("Analysis failed")
		}
		out, _ := json.MarshalIndent(res, "", "  ")
		os.Stdout.Write(append(out, '\n'))
	}

	if opts.Export != "" {
		path := opts.Export
		if path == "-" {
			path = sess.ExportName()
		}
		if err := sess.ExportFile(path); err != nil {
			log.Fatal().Err(err).Str("status", sess.Status()).Msg("Export failed")
		}
		log.Info().Str("path", path).Msg("Export written")
	}

	log.Info().Str("status", sess.Status()).Int("features", draw.Len()).Msg("Done")
}
