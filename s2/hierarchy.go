/*
Package s2 provides a tile hierarchy of S2 Geometry cells.

The six face cells are the roots and each cell has four children, down to a configurable max level.
Cells are addressed as "s2/<token>" tile ids and bounded by their lng/lat rectangles.

Computing a cell's bound is trigonometry-heavy and a traversal asks for the
same bounds every frame, so bounds are kept in a small LRU.
*/
package s2

import (
	"fmt"
	"github.com/golang/geo/s2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/hierarchy"
)

const defaultBoundCacheSize = 4096

type Hierarchy struct {
	maxLevel CellLevel
	pixels   float64
	bounds   *lru.Cache[s2.CellID, orb.Bound]
}

// NewHierarchy returns an S2 hierarchy whose leaves are at maxLevel.
func NewHierarchy(maxLevel CellLevel) (*Hierarchy, error) {
	if !maxLevel.Valid() {
		return nil, fmt.Errorf("invalid s2 cell level %d", maxLevel)
	}
	cache, err := lru.New[s2.CellID, orb.Bound](defaultBoundCacheSize)
	if err != nil {
		return nil, err
	}
	return &Hierarchy{maxLevel: maxLevel, pixels: hierarchy.DefaultTilePixels, bounds: cache}, nil
}

func (h *Hierarchy) cell(id conceptual.TileID) (s2.CellID, bool) {
	cellID, err := ParseTileID(id)
	if err != nil || CellLevel(cellID.Level()) > h.maxLevel {
		return 0, false
	}
	return cellID, true
}

func (h *Hierarchy) bound(cellID s2.CellID) orb.Bound {
	if b, ok := h.bounds.Get(cellID); ok {
		return b
	}
	b := CellBound(cellID)
	h.bounds.Add(cellID, b)
	return b
}

func (h *Hierarchy) Roots() []conceptual.TileID {
	out := make([]conceptual.TileID, 0, 6)
	for face := 0; face < 6; face++ {
		out = append(out, TileID(s2.CellIDFromFace(face)))
	}
	return out
}

func (h *Hierarchy) Level(id conceptual.TileID) int {
	cellID, ok := h.cell(id)
	if !ok {
		return -1
	}
	return cellID.Level()
}

func (h *Hierarchy) Parent(id conceptual.TileID) (conceptual.TileID, bool) {
	cellID, ok := h.cell(id)
	if !ok || cellID.Level() == 0 {
		return "", false
	}
	return TileID(cellID.Parent(cellID.Level() - 1)), true
}

func (h *Hierarchy) ChildIDs(id conceptual.TileID) []conceptual.TileID {
	cellID, ok := h.cell(id)
	if !ok || CellLevel(cellID.Level()) >= h.maxLevel {
		return nil
	}
	children := cellID.Children()
	out := make([]conceptual.TileID, 0, len(children))
	for _, c := range children {
		out = append(out, TileID(c))
	}
	return out
}

func (h *Hierarchy) Bounds(id conceptual.TileID) orb.Bound {
	cellID, ok := h.cell(id)
	if !ok {
		return orb.Bound{}
	}
	return h.bound(cellID)
}

func (h *Hierarchy) GeometricError(id conceptual.TileID) float64 {
	cellID, ok := h.cell(id)
	if !ok || CellLevel(cellID.Level()) >= h.maxLevel {
		return 0
	}
	return hierarchy.BoundGeometricError(h.bound(cellID), h.pixels)
}

var _ hierarchy.Hierarchy = (*Hierarchy)(nil)
