package params

import (
	"fmt"
	"github.com/rotblauer/tilestream/conceptual"
	"time"
)

// RefinementStrategy decides what gets shown while a refined tile's
// children are still loading.
type RefinementStrategy string

const (
	// RefineNever never shows a parent in place of its missing children.
	// Holes are drawn until the children arrive. A failed child still leaves its parent selected.
	RefineNever RefinementStrategy = "never"

	// RefineNoOverlap shows either a parent or its children, never both.
	// Children are only used once every visible child has loaded.
	RefineNoOverlap RefinementStrategy = "no-overlap"

	// RefineBestAvailable shows loaded children and keeps the parent
	// selected as a placeholder until all visible children have loaded.
	RefineBestAvailable RefinementStrategy = "best-available"
)

func ParseRefinementStrategy(s string) (RefinementStrategy, error) {
	switch RefinementStrategy(s) {
	case RefineNever, RefineNoOverlap, RefineBestAvailable:
		return RefinementStrategy(s), nil
	case "":
		return RefineBestAvailable, nil
	}
	return "", fmt.Errorf("unknown refinement strategy %q", s)
}

type TilesetConfig struct {
	// Name is used for logging and metric names only.
	Name string

	// MaxConcurrentRequests bounds the number of in-flight tile fetches.
	MaxConcurrentRequests int

	// MaxCacheSlots is the soft limit on the number of cached tiles. 0 is unlimited.
	MaxCacheSlots int

	// MaxCacheByteSize is the soft limit on the cumulative byte size
	// of cached tile content. 0 is unlimited.
	// Both limits are soft: selected tiles are never evicted,
	// so a viewport showing more than the budget overshoots it.
	MaxCacheByteSize int64

	// MinZoom is the coarsest level ever fetched or selected.
	// Levels above it (coarser) are walked through but never loaded.
	MinZoom int

	// MaxZoom caps refinement. -1 means no cap (the hierarchy decides).
	MaxZoom int

	// MaxScreenSpaceError is the screen-space error, in pixels, above which a tile is refined.
	MaxScreenSpaceError float64

	RefinementStrategy RefinementStrategy

	// ErrorRetryInterval is how long a failed tile is left alone
	// (its parent shown instead) before being requested again.
	ErrorRetryInterval time.Duration

	// FrameStatsWindow is the number of recent frames summarized by Stats.
	FrameStatsWindow int

	// StrictInvariants panics on programmer errors (double deregistration,
	// duplicate cache insert) instead of logging them. Use in tests and debug builds.
	StrictInvariants bool

	// OnTileError, if set, is called on the driver goroutine once for every failed tile fetch.
	OnTileError func(id conceptual.TileID, err error) `json:"-"`
}

func DefaultTilesetConfig() *TilesetConfig {
	return &TilesetConfig{
		Name:                  "tileset",
		MaxConcurrentRequests: 6,
		MaxCacheSlots:         512,
		MaxCacheByteSize:      256 << 20,
		MinZoom:               0,
		MaxZoom:               -1,
		MaxScreenSpaceError:   1.0,
		RefinementStrategy:    RefineBestAvailable,
		ErrorRetryInterval:    30 * time.Second,
		FrameStatsWindow:      120,
		StrictInvariants:      false,
	}
}

// DefaultTestTilesetConfig is like the default but strict, small and unbounded on bytes.
func DefaultTestTilesetConfig() *TilesetConfig {
	c := DefaultTilesetConfig()
	c.Name = "test"
	c.MaxCacheSlots = 0
	c.MaxCacheByteSize = 0
	c.StrictInvariants = true
	c.FrameStatsWindow = 8
	return c
}

// Validate fills zero values with defaults and rejects nonsense.
func (c *TilesetConfig) Validate() error {
	d := DefaultTilesetConfig()
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = d.MaxConcurrentRequests
	}
	if c.MaxScreenSpaceError <= 0 {
		c.MaxScreenSpaceError = d.MaxScreenSpaceError
	}
	if c.FrameStatsWindow <= 0 {
		c.FrameStatsWindow = d.FrameStatsWindow
	}
	if c.ErrorRetryInterval <= 0 {
		c.ErrorRetryInterval = d.ErrorRetryInterval
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	s, err := ParseRefinementStrategy(string(c.RefinementStrategy))
	if err != nil {
		return err
	}
	c.RefinementStrategy = s
	if c.MaxCacheSlots < 0 || c.MaxCacheByteSize < 0 {
		return fmt.Errorf("negative cache budget: slots=%d bytes=%d", c.MaxCacheSlots, c.MaxCacheByteSize)
	}
	if c.MinZoom < 0 {
		return fmt.Errorf("negative min zoom: %d", c.MinZoom)
	}
	if c.MaxZoom >= 0 && c.MaxZoom < c.MinZoom {
		return fmt.Errorf("max zoom %d below min zoom %d", c.MaxZoom, c.MinZoom)
	}
	return nil
}
