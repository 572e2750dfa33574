package hierarchy

import (
	"fmt"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/rotblauer/tilestream/conceptual"
	"strconv"
	"strings"
)

// Quadtree is the slippy-map (z/x/y) tile pyramid.
// Bounds are lng/lat degrees in web mercator tiling.
type Quadtree struct {
	// RootZoom is the zoom of the root tiles; there are 4^RootZoom of them.
	RootZoom maptile.Zoom

	// MaxZoom is the deepest zoom with data. Tiles at MaxZoom are leaves.
	MaxZoom maptile.Zoom

	// TilePixels is the native tile size, usually 256 or 512.
	TilePixels float64
}

func NewQuadtree(rootZoom, maxZoom maptile.Zoom) (*Quadtree, error) {
	if maxZoom < rootZoom {
		return nil, fmt.Errorf("max zoom %d below root zoom %d", maxZoom, rootZoom)
	}
	if rootZoom > 8 {
		// 4^8 == 65536 roots is already absurd.
		return nil, fmt.Errorf("root zoom %d too deep", rootZoom)
	}
	return &Quadtree{RootZoom: rootZoom, MaxZoom: maxZoom, TilePixels: DefaultTilePixels}, nil
}

// QuadtreeID formats a slippy tile as "z/x/y".
func QuadtreeID(t maptile.Tile) conceptual.TileID {
	return conceptual.TileID(fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y))
}

// ParseQuadtreeID parses a "z/x/y" id.
func ParseQuadtreeID(id conceptual.TileID) (maptile.Tile, error) {
	parts := strings.Split(id.String(), "/")
	if len(parts) != 3 {
		return maptile.Tile{}, fmt.Errorf("malformed quadtree id %q", id)
	}
	var n [3]uint64
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return maptile.Tile{}, fmt.Errorf("malformed quadtree id %q: %w", id, err)
		}
		n[i] = v
	}
	t := maptile.New(uint32(n[1]), uint32(n[2]), maptile.Zoom(n[0]))
	if !t.Valid() {
		return maptile.Tile{}, fmt.Errorf("invalid quadtree tile %q", id)
	}
	return t, nil
}

func (q *Quadtree) tile(id conceptual.TileID) (maptile.Tile, bool) {
	t, err := ParseQuadtreeID(id)
	if err != nil || t.Z < q.RootZoom || t.Z > q.MaxZoom {
		return maptile.Tile{}, false
	}
	return t, true
}

func (q *Quadtree) Roots() []conceptual.TileID {
	n := uint32(1) << q.RootZoom
	out := make([]conceptual.TileID, 0, n*n)
	for y := uint32(0); y < n; y++ {
		for x := uint32(0); x < n; x++ {
			out = append(out, QuadtreeID(maptile.New(x, y, q.RootZoom)))
		}
	}
	return out
}

func (q *Quadtree) Level(id conceptual.TileID) int {
	t, ok := q.tile(id)
	if !ok {
		return -1
	}
	return int(t.Z)
}

func (q *Quadtree) Parent(id conceptual.TileID) (conceptual.TileID, bool) {
	t, ok := q.tile(id)
	if !ok || t.Z == q.RootZoom {
		return "", false
	}
	return QuadtreeID(t.Parent()), true
}

func (q *Quadtree) ChildIDs(id conceptual.TileID) []conceptual.TileID {
	t, ok := q.tile(id)
	if !ok || t.Z >= q.MaxZoom {
		return nil
	}
	children := t.Children()
	out := make([]conceptual.TileID, 0, len(children))
	for _, c := range children {
		out = append(out, QuadtreeID(c))
	}
	return out
}

func (q *Quadtree) Bounds(id conceptual.TileID) orb.Bound {
	t, ok := q.tile(id)
	if !ok {
		return orb.Bound{}
	}
	return t.Bound()
}

func (q *Quadtree) GeometricError(id conceptual.TileID) float64 {
	t, ok := q.tile(id)
	if !ok || t.Z >= q.MaxZoom {
		return 0
	}
	return BoundGeometricError(t.Bound(), q.TilePixels)
}

var _ Hierarchy = (*Quadtree)(nil)
