// Package client talks to the feature backend over its two-call HTTP
// API. Any non-200 status is a uniform transport failure; nothing is
// retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/plansketch/plansketch/internal/geo"
)

const defaultTimeout = 15 * time.Second

// Client issues feature fetches and whole-collection saves.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the backend at the given base URL.
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithHTTPClient allows tests and callers with transport needs to
// supply their own http.Client.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	c := New(base)
	if hc != nil {
		c.http = hc
	}
	return c
}

// FetchFeatures requests the features intersecting the viewport.
func (c *Client) FetchFeatures(ctx context.Context, vp geo.Viewport) (*geojson.FeatureCollection, error) {
	u := fmt.Sprintf("%s/api/features?bbox=%s", c.base, url.QueryEscape(vp.BBox()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("features request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("features request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("features request: status %d", resp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("features response: %w", err)
	}

	return &fc, nil
}

// SaveFeatures uploads the collection as a complete replacement
// payload; there is no diffing and no partial-success semantics.
func (c *Client) SaveFeatures(ctx context.Context, fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = &geojson.FeatureCollection{}
	}

	body, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("save payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/save", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save request: status %d", resp.StatusCode)
	}

	return nil
}
