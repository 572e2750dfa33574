package s2

import (
	"fmt"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"strings"
)

const idPrefix = "s2/"

// CellIDWithLevel returns the cellID truncated to the given level.
// https://docs.s2cell.aliddell.com/en/stable/s2_concepts.html#truncation
func CellIDWithLevel(cellID s2.CellID, level CellLevel) s2.CellID {
	var lsb uint64 = 1 << (2 * (30 - level))
	truncatedCellID := (uint64(cellID) & -lsb) | lsb
	return s2.CellID(truncatedCellID)
}

// CellIDForPointLevel returns the cell at some level containing a lng/lat point.
func CellIDForPointLevel(pt orb.Point, level CellLevel) s2.CellID {
	return CellIDWithLevel(s2.CellIDFromLatLng(s2.LatLngFromDegrees(pt.Lat(), pt.Lon())), level)
}

// TileID formats a cell as "s2/<token>".
func TileID(cellID s2.CellID) conceptual.TileID {
	return conceptual.TileID(idPrefix + cellID.ToToken())
}

// ParseTileID parses an "s2/<token>" id.
func ParseTileID(id conceptual.TileID) (s2.CellID, error) {
	token, ok := strings.CutPrefix(id.String(), idPrefix)
	if !ok {
		return 0, fmt.Errorf("not an s2 tile id: %q", id)
	}
	cellID := s2.CellIDFromToken(token)
	if !cellID.IsValid() {
		return 0, fmt.Errorf("invalid s2 token in %q", id)
	}
	return cellID, nil
}

// CellBound is the lng/lat bounding rectangle of a cell, in degrees.
// Cells straddling the antimeridian get the full longitude range.
func CellBound(cellID s2.CellID) orb.Bound {
	rect := s2.CellFromCellID(cellID).RectBound()
	lo, hi := rect.Lo(), rect.Hi()
	minLng, maxLng := lo.Lng.Degrees(), hi.Lng.Degrees()
	if rect.Lng.IsInverted() || maxLng < minLng {
		minLng, maxLng = -180, 180
	}
	return orb.Bound{
		Min: orb.Point{minLng, lo.Lat.Degrees()},
		Max: orb.Point{maxLng, hi.Lat.Degrees()},
	}
}

// CellPolygon is the cell's outline as a lng/lat polygon.
func CellPolygon(cellID s2.CellID) orb.Polygon {
	cell := s2.CellFromCellID(cellID)
	vertices := make([]orb.Point, 0, 5)
	for i := 0; i < 4; i++ {
		ll := s2.LatLngFromPoint(cell.Vertex(i))
		vertices = append(vertices, orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	vertices = append(vertices, vertices[0])
	return orb.Polygon{orb.Ring(vertices)}
}
