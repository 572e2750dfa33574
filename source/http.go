/*
Package source provides reference tile data sources: HTTP tile servers,
a local bbolt tile store, and S3 buckets.

All sources are safe for concurrent use. A tileset never fetches the same
tile twice at once, but other callers sharing a source might, so the HTTP
source collapses concurrent duplicate requests.
*/
package source

import (
	"context"
	"fmt"
	"github.com/golang/groupcache/singleflight"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/content"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/types/tilenode"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// StatusError is a non-2xx, non-404 tile server response.
type StatusError struct {
	ID     conceptual.TileID
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile %s: http status %d", e.ID, e.Status)
}

type HTTPSource struct {
	config  *params.HTTPSourceConfig
	client  *http.Client
	decoder content.Decoder
	group   singleflight.Group
	logger  *slog.Logger
}

// NewHTTPSource builds a source from config. A nil decoder keeps raw bytes.
func NewHTTPSource(config *params.HTTPSourceConfig, decoder content.Decoder) (*HTTPSource, error) {
	if config == nil {
		config = params.DefaultHTTPSourceConfig()
	}
	if !strings.Contains(config.URLTemplate, "{") {
		return nil, fmt.Errorf("url template %q has no placeholders", config.URLTemplate)
	}
	if decoder == nil {
		decoder = content.Raw{}
	}
	if config.Decompress {
		decoder = content.Decompress{Next: decoder}
	}
	return &HTTPSource{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		decoder: decoder,
		logger:  slog.With("source", "http"),
	}, nil
}

// URL expands the template for id.
func (s *HTTPSource) URL(id conceptual.TileID) (string, error) {
	u := strings.ReplaceAll(s.config.URLTemplate, "{id}", id.String())
	if strings.Contains(u, "{z}") || strings.Contains(u, "{x}") || strings.Contains(u, "{y}") {
		t, err := hierarchy.ParseQuadtreeID(id)
		if err != nil {
			return "", err
		}
		u = strings.NewReplacer(
			"{z}", strconv.Itoa(int(t.Z)),
			"{x}", strconv.FormatUint(uint64(t.X), 10),
			"{y}", strconv.FormatUint(uint64(t.Y), 10),
		).Replace(u)
	}
	return u, nil
}

func (s *HTTPSource) FetchTile(ctx context.Context, id conceptual.TileID) (*tilenode.TileContent, error) {
	raw, err := s.FetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decoder.Decode(id, raw)
}

func (s *HTTPSource) get(ctx context.Context, id conceptual.TileID, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("%w: %s", tilenode.ErrTileNotFound, id)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, &StatusError{ID: id, Status: res.StatusCode}
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("tile %s: read body: %w", id, err)
	}
	s.logger.Debug("Fetched tile", "id", id, "bytes", len(body))
	return body, nil
}
