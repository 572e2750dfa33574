package tilenode

import (
	"context"
	"errors"
	"fmt"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
)

// State is where a tile is in its load lifecycle.
// Unrequested -> Requested -> Loaded | Errored.
type State int

const (
	Unrequested State = iota
	Requested
	Loaded
	Errored
)

func (s State) String() string {
	switch s {
	case Unrequested:
		return "unrequested"
	case Requested:
		return "requested"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TileContent is what a Source hands back for a tile.
// Payload is opaque to the engine and treated as immutable once loaded.
type TileContent struct {
	ByteSize int64
	Payload  any
}

// ErrTileNotFound is returned by a Source that has no data for a tile.
var ErrTileNotFound = errors.New("tile not found")

// Source fetches tile content. Implementations must be safe
// to call from many goroutines at once; the engine calls FetchTile
// at most once at a time per tile id.
type Source interface {
	FetchTile(ctx context.Context, id conceptual.TileID) (*TileContent, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, id conceptual.TileID) (*TileContent, error)

func (f SourceFunc) FetchTile(ctx context.Context, id conceptual.TileID) (*TileContent, error) {
	return f(ctx, id)
}

// Node is a tile known to a tileset.
// Once inserted into a tilecache.Store the store owns it;
// everything else holds ids or borrows the pointer for the duration of a call.
type Node struct {
	ID     conceptual.TileID
	Level  int
	Bounds orb.Bound

	// ParentID is a weak reference to the parent, empty for roots.
	// The parent may well have been evicted.
	ParentID conceptual.TileID

	Content *TileContent
	State   State
	Err     error

	LastTouchedFrame int64
	ByteSize         int64

	children       []conceptual.TileID
	childrenLoaded bool
}

func New(id conceptual.TileID, level int, bounds orb.Bound, parent conceptual.TileID) *Node {
	return &Node{
		ID:       id,
		Level:    level,
		Bounds:   bounds,
		ParentID: parent,
		State:    Unrequested,
	}
}

func (n *Node) IsRoot() bool {
	return n.ParentID.Empty()
}

// Children returns the child ids, asking childIDs only the first time.
func (n *Node) Children(childIDs func(conceptual.TileID) []conceptual.TileID) []conceptual.TileID {
	if !n.childrenLoaded {
		n.children = childIDs(n.ID)
		n.childrenLoaded = true
	}
	return n.children
}

// MarkRequested moves an unrequested node to Requested.
func (n *Node) MarkRequested() {
	n.State = Requested
	n.Err = nil
}

// Load attaches content and marks the node Loaded.
// A negative content byte size counts as 0.
func (n *Node) Load(content *TileContent) {
	n.Content = content
	n.ByteSize = 0
	if content != nil && content.ByteSize > 0 {
		n.ByteSize = content.ByteSize
	}
	n.State = Loaded
	n.Err = nil
}

// Fail marks the node Errored. Failed nodes hold no content.
func (n *Node) Fail(err error) {
	n.Content = nil
	n.ByteSize = 0
	n.State = Errored
	n.Err = err
}

// Reset drops content and returns the node to Unrequested.
func (n *Node) Reset() {
	n.Content = nil
	n.ByteSize = 0
	n.State = Unrequested
	n.Err = nil
}

func (n *Node) IsLoaded() bool {
	return n.State == Loaded
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(z%d,%s)", n.ID, n.Level, n.State)
}
