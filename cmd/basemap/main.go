package main

import (
	"crypto/tls"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/plansketch/plansketch/internal/basemap"
	"github.com/plansketch/plansketch/internal/config"
	"github.com/plansketch/plansketch/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string  `short:"c" long:"config"    env:"CONFIG_FILE" description:"Path to scenario file"                         default:"scenario.yaml"`
	Source     string  `short:"s" long:"source"    env:"SOURCE"      description:"Plan image path or URL (overrides scenario)"`
	TilesDir   string  `short:"t" long:"tiles"     env:"TILES_DIR"   description:"Basemap tile pyramid root"                     default:"maps"`
	ZoomLimit  int     `short:"z" long:"zoom-limit" env:"ZOOM_LIMIT" description:"Pyramid zoom limit (overrides scenario)"`
	Quality    float32 `short:"q" long:"quality"   env:"QUALITY"     description:"WebP quality"                                  default:"85"`
	Workers    int     `short:"w" long:"workers"   env:"WORKERS"     description:"Concurrent tile writers"                       default:"20"`
	Force      bool    `short:"f" long:"force"     description:"Force overwrite of existing tiles"`
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

	source := opts.Source
	if source == "" {
		source = cfg.Basemap.Source
	}
	if source == "" {
		log.Fatal().Msg("No basemap source: set basemap.source in the scenario file or pass --source")
	}

	zoomLimit := opts.ZoomLimit
	if zoomLimit <= 0 {
		zoomLimit = cfg.Basemap.ZoomLimit
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto: make(map[string]func(string, *tls.Conn) http.RoundTripper),
		},
		Timeout: 60 * time.Second,
	}

	builder := basemap.NewBuilder(client)
	builder.TileSize = cfg.Basemap.TileSize
	builder.Quality = opts.Quality
	if opts.Workers > 0 {
		builder.Workers = opts.Workers
	}

	destDir := filepath.Join(opts.TilesDir, cfg.Scenario)
	log.Info().
		Str("scenario", cfg.Scenario).
		Str("source", source).
		Str("dest", destDir).
		Int("zoom_limit", zoomLimit).
		Msg("Building basemap pyramid")

	if err := builder.Build(source, destDir, zoomLimit, opts.Force); err != nil {
		log.Fatal().Err(err).Msg("Failed to build basemap")
	}

	log.Info().Msg("Basemap build finished")
}
