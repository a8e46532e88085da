package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/plansketch/plansketch/internal/analysis"
	"github.com/plansketch/plansketch/internal/backend"
	"github.com/plansketch/plansketch/internal/config"
	"github.com/plansketch/plansketch/internal/logger"
	"github.com/plansketch/plansketch/internal/webui"

	"github.com/go-chi/chi/v5"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string  `short:"c" long:"config"     env:"CONFIG_FILE"    description:"Path to scenario file"       default:"scenario.yaml"`
	Addr       string  `short:"a" long:"addr"       env:"LISTEN_ADDRESS" description:"Address to listen on"        default:"0.0.0.0"`
	Port       int     `short:"p" long:"port"       env:"LISTEN_PORT"    description:"Port to listen on"           default:"8080"`
	DataFile   string  `short:"d" long:"data"       env:"DATA_FILE"      description:"Feature database path"       default:"plansketch.db"`
	TilesDir   string  `short:"t" long:"tiles"      env:"TILES_DIR"      description:"Basemap tile pyramid root"   default:"maps"`
	RateLimit  float64 `long:"rate-limit"           env:"RATE_LIMIT"     description:"API requests per second cap" default:"50"`
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

	store, err := backend.OpenStore(opts.DataFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open feature store")
	}
	defer func() { _ = store.Close() }()

	api := backend.NewHandler(store, cfg, analysis.New(cfg.AnalysisDelay()))

	page, err := webui.NewPageServer(cfg, opts.TilesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble web UI")
	}

	r := chi.NewRouter()
	r.Use(webui.RequestLogger)
	r.Mount("/api", api.Routes(opts.RateLimit, 0))
	r.Get("/tiles/{z}/{x}/{y}", page.HandleTile)
	r.Get("/", page.HandleIndex)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("scenario", cfg.Scenario).
		Str("data", opts.DataFile).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
