package conceptual

// TileID identifies a tile by its position in some hierarchy,
// eg. "3/4/2" for a slippy tile or "s2/89c25" for an S2 cell.
// Two ids are the same tile iff they are equal strings.
type TileID string

func (t TileID) String() string {
	return string(t)
}

func (t TileID) Empty() bool {
	return t == ""
}

// ViewportID names a viewport (a camera) driving a traversal.
// A tileset may be driven by more than one, eg. a main map and a minimap.
type ViewportID string

func (v ViewportID) String() string {
	return string(v)
}

func (v ViewportID) Empty() bool {
	return v == ""
}
