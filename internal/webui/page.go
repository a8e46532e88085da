package webui

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"github.com/plansketch/plansketch/internal/config"
)

//go:embed assets/index.html.tpl assets/app.js assets/style.css
var assets embed.FS

type pageData struct {
	Title     string
	CSS       string
	JS        string
	Bootstrap string
}

// BuildIndex assembles and minifies the editor page at startup,
// injecting the scenario bootstrap the script reads before it talks to
// the API.
func BuildIndex(cfg *config.Config) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)

	cssRaw, err := assets.ReadFile("assets/style.css")
	if err != nil {
		return nil, fmt.Errorf("read css: %w", err)
	}
	cssMin, err := m.String("text/css", string(cssRaw))
	if err != nil {
		return nil, fmt.Errorf("minify css: %w", err)
	}

	jsRaw, err := assets.ReadFile("assets/app.js")
	if err != nil {
		return nil, fmt.Errorf("read js: %w", err)
	}
	jsMin, err := m.String("text/javascript", string(jsRaw))
	if err != nil {
		return nil, fmt.Errorf("minify js: %w", err)
	}

	bootstrap, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode bootstrap: %w", err)
	}

	htmlRaw, err := assets.ReadFile("assets/index.html.tpl")
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	tmpl, err := template.New("index").Parse(string(htmlRaw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, pageData{
		Title:     cfg.Title,
		CSS:       cssMin,
		JS:        jsMin,
		Bootstrap: string(bootstrap),
	})
	if err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	final, err := m.String("text/html", buf.String())
	if err != nil {
		return nil, fmt.Errorf("minify html: %w", err)
	}

	return []byte(final), nil
}
