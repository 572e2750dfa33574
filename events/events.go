// Package events holds the payloads a tileset publishes on its feeds.
package events

import (
	"github.com/rotblauer/tilestream/conceptual"
)

// TileLoaded is sent once for every tile stored as Loaded.
type TileLoaded struct {
	Tileset  string            `json:"tileset"`
	ID       conceptual.TileID `json:"id"`
	Level    int               `json:"level"`
	ByteSize int64             `json:"byteSize"`
	Frame    int64             `json:"frame"`
}

// TileError is sent once for every failed fetch.
type TileError struct {
	Tileset string            `json:"tileset"`
	ID      conceptual.TileID `json:"id"`
	Err     error             `json:"-"`
	Message string            `json:"error"`
	Frame   int64             `json:"frame"`
}

// Selection is sent whenever the selected set changes.
type Selection struct {
	Tileset  string                `json:"tileset"`
	Viewport conceptual.ViewportID `json:"viewport"`
	Frame    int64                 `json:"frame"`
	Loaded   bool                  `json:"loaded"`
	Added    []conceptual.TileID   `json:"added"`
	Removed  []conceptual.TileID   `json:"removed"`
	Selected []conceptual.TileID   `json:"selected"`
}

// Changed is the number of tiles whose selection state flipped.
func (s Selection) Changed() int {
	return len(s.Added) + len(s.Removed)
}
