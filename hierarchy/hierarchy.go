/*
Package hierarchy describes the tile trees a tileset can walk.

A tileset never indexes tiles itself; it asks a Hierarchy for roots, children and bounds by id.
Slippy-map quadtrees, S2 cells (see package s2) and explicit JSON manifests
(3D Tiles style trees or I3S style flat node pages) all fit behind the same interface.
*/
package hierarchy

import (
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
)

// Hierarchy is the capability set a traversal needs from a tile tree.
// Implementations must be safe for concurrent reads.
type Hierarchy interface {
	// Roots returns the top-level tiles in a stable order.
	Roots() []conceptual.TileID

	// Level returns the depth of a tile, 0 for roots of a root-zoom-0 tree.
	// Unknown ids return -1.
	Level(id conceptual.TileID) int

	// Parent returns the parent id, or false for roots and unknown ids.
	Parent(id conceptual.TileID) (conceptual.TileID, bool)

	// ChildIDs returns the ordered children of a tile, nil for leaves.
	ChildIDs(id conceptual.TileID) []conceptual.TileID

	// Bounds returns the tile's axis-aligned bounds.
	Bounds(id conceptual.TileID) orb.Bound

	// GeometricError is the error, in bound units, of showing this tile
	// instead of its children. Leaves should return 0.
	GeometricError(id conceptual.TileID) float64
}

// DefaultTilePixels is the native pixel size used to derive geometric errors from bounds.
const DefaultTilePixels = 256

// BoundGeometricError is the bound height spread over a tile's native pixels,
// ie. bound units per pixel at the tile's own resolution.
func BoundGeometricError(b orb.Bound, pixels float64) float64 {
	if pixels <= 0 {
		pixels = DefaultTilePixels
	}
	return (b.Top() - b.Bottom()) / pixels
}
