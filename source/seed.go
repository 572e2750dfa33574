package source

import (
	"context"
	"errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/types/tilenode"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"sort"
	"sync/atomic"
)

// RawFetcher returns undecoded tile bytes.
type RawFetcher interface {
	FetchRaw(ctx context.Context, id conceptual.TileID) ([]byte, error)
}

// FetchRaw returns the tile's bytes as served, without decoding.
func (s *HTTPSource) FetchRaw(ctx context.Context, id conceptual.TileID) ([]byte, error) {
	u, err := s.URL(id)
	if err != nil {
		return nil, err
	}
	// Callers collapsed onto one request share its context.
	v, err := s.group.Do(u, func() (interface{}, error) {
		return s.get(ctx, id, u)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// CoverIDs lists the slippy tile ids covering bound for each zoom in [minZoom, maxZoom], coarse first.
func CoverIDs(bound orb.Bound, minZoom, maxZoom maptile.Zoom) []conceptual.TileID {
	var out []conceptual.TileID
	for z := minZoom; z <= maxZoom; z++ {
		set, err := tilecover.Geometry(bound.ToPolygon(), z)
		if err != nil {
			continue
		}
		ids := make([]conceptual.TileID, 0, len(set))
		for t := range set {
			ids = append(ids, hierarchy.QuadtreeID(t))
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids...)
	}
	return out
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Stored  int64
	Skipped int64
	Missing int64
}

// Seed copies ids from src into dst with up to workers concurrent fetches.
// Tiles already in dst are skipped; tiles the source does not have are counted, not fatal.
func Seed(ctx context.Context, src RawFetcher, dst *BoltSource, ids []conceptual.TileID, workers int) (SeedResult, error) {
	var stored, skipped, missing atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	meter := newSeedMeter(SeedLogInterval, len(ids))
	defer meter.stop()
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		ok, err := dst.Has(id)
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		if ok {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			raw, err := src.FetchRaw(ctx, id)
			if errors.Is(err, tilenode.ErrTileNotFound) {
				missing.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			if err := dst.Put(id, raw); err != nil {
				return err
			}
			stored.Add(1)
			meter.mark(id, len(raw))
			slog.Debug("Seeded tile", "id", id, "bytes", len(raw))
			return nil
		})
	}
	err := g.Wait()
	return SeedResult{Stored: stored.Load(), Skipped: skipped.Load(), Missing: missing.Load()}, err
}
