/*
Package traverser walks a tile hierarchy against a viewport and decides what to show.

Each pass starts at the hierarchy roots and works off an explicit stack, so depth is
bounded by the hierarchy rather than the goroutine stack. A visited tile is either
selected (its screen-space error is tolerable, or it cannot be refined) or refined
into its visible children. Children that are not cached are registered as pending
for the frame and handed to a Fetcher; the pass does not wait for them.

When a fetch completes, Complete stores the tile, deregisters it and,
if the current frame still wants it, re-walks the parent's subtree so the
newly loaded tile takes its place without waiting for the next frame.
*/
package traverser

import (
	"fmt"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/pending"
	"github.com/rotblauer/tilestream/tilecache"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
	"log/slog"
)

// Fetcher starts loading a requested node. It must not call back into the
// Traverser synchronously; the result is delivered later through Complete
// (or Cancel) on the driver goroutine.
type Fetcher interface {
	Fetch(n *tilenode.Node)
}

type FetcherFunc func(n *tilenode.Node)

func (f FetcherFunc) Fetch(n *tilenode.Node) { f(n) }

// Outcome describes what Complete did with a result.
type Outcome int

const (
	// Unknown results belong to no in-flight request, eg. after Reset.
	Unknown Outcome = iota

	// Stale results were stored but the current frame no longer wants them.
	Stale

	// Resumed results were stored and the current frame was re-walked under their parent.
	Resumed
)

func (o Outcome) String() string {
	switch o {
	case Stale:
		return "stale"
	case Resumed:
		return "resumed"
	}
	return "unknown"
}

type frameKey struct {
	viewport conceptual.ViewportID
	frame    int64
}

type flight struct {
	node   *tilenode.Node
	frames []frameKey
}

type work struct {
	id     conceptual.TileID
	parent conceptual.TileID
}

// Stats counts the work done for the current frame.
type Stats struct {
	Frame     int64 `json:"frame"`
	Visited   int   `json:"visited"`
	Selected  int   `json:"selected"`
	Requested int   `json:"requested"`
	Resumed   int   `json:"resumed"`
}

// Traverser is not safe for concurrent use.
type Traverser struct {
	config    *params.TilesetConfig
	hierarchy hierarchy.Hierarchy
	store     *tilecache.Store
	registry  *pending.Registry
	fetcher   Fetcher
	logger    *slog.Logger

	fs *viewport.FrameState

	inflight map[conceptual.TileID]*flight

	// visitedParent maps every tile visited this frame to the tile it was reached from.
	visitedParent map[conceptual.TileID]conceptual.TileID
	selected      map[conceptual.TileID]struct{}
	order         []conceptual.TileID

	stack []work
	stats Stats
}

func New(config *params.TilesetConfig, h hierarchy.Hierarchy, store *tilecache.Store, registry *pending.Registry, fetcher Fetcher) *Traverser {
	return &Traverser{
		config:        config,
		hierarchy:     h,
		store:         store,
		registry:      registry,
		fetcher:       fetcher,
		logger:        slog.With("traverser", config.Name),
		inflight:      make(map[conceptual.TileID]*flight),
		visitedParent: make(map[conceptual.TileID]conceptual.TileID),
		selected:      make(map[conceptual.TileID]struct{}),
	}
}

func (t *Traverser) violation(msg string, args ...any) {
	if t.config.StrictInvariants {
		panic(fmt.Sprintf("traverser %s: %s %v", t.config.Name, msg, args))
	}
	t.logger.Error("Invariant violation", append([]any{"reason", msg}, args...)...)
}

// Frame returns the current frame, or nil before the first pass.
func (t *Traverser) Frame() *viewport.FrameState {
	return t.fs
}

func (t *Traverser) Stats() Stats {
	return t.stats
}

// Traverse runs a full pass for fs, replacing the previous frame's selection.
func (t *Traverser) Traverse(fs *viewport.FrameState) {
	t.fs = fs
	clear(t.visitedParent)
	clear(t.selected)
	t.order = t.order[:0]
	t.stats = Stats{Frame: fs.Number}

	roots := t.hierarchy.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		t.stack = append(t.stack, work{id: roots[i]})
	}
	t.walk()
}

// IsLoaded reports whether the current frame has no pending tiles.
func (t *Traverser) IsLoaded() bool {
	if t.fs == nil {
		return false
	}
	return t.registry.IsZero(t.fs.ViewportID(), t.fs.Number)
}

func (t *Traverser) Selected() []conceptual.TileID {
	return append([]conceptual.TileID(nil), t.order...)
}

func (t *Traverser) IsSelected(id conceptual.TileID) bool {
	_, ok := t.selected[id]
	return ok
}

// Visited reports whether id was walked through this frame.
func (t *Traverser) Visited(id conceptual.TileID) bool {
	_, ok := t.visitedParent[id]
	return ok
}

// Protected reports whether evicting id would break the current frame:
// it is selected, or on the path to a selected tile.
func (t *Traverser) Protected(id conceptual.TileID) bool {
	return t.Visited(id) || t.IsSelected(id)
}

// Referenced reports whether id is in flight on behalf of the current frame.
func (t *Traverser) Referenced(id conceptual.TileID) bool {
	f, ok := t.inflight[id]
	if !ok || t.fs == nil {
		return false
	}
	return f.has(frameKey{t.fs.ViewportID(), t.fs.Number})
}

func (t *Traverser) InFlight(id conceptual.TileID) bool {
	_, ok := t.inflight[id]
	return ok
}

// InFlightNode returns the requested node for id while its fetch is outstanding.
func (t *Traverser) InFlightNode(id conceptual.TileID) (*tilenode.Node, bool) {
	f, ok := t.inflight[id]
	if !ok {
		return nil, false
	}
	return f.node, true
}

func (t *Traverser) InFlightLen() int {
	return len(t.inflight)
}

func (f *flight) has(k frameKey) bool {
	for _, fk := range f.frames {
		if fk == k {
			return true
		}
	}
	return false
}

// virtual tiles sit above MinZoom: walked through, never fetched or selected.
func (t *Traverser) virtual(level int) bool {
	return level < t.config.MinZoom
}

func (t *Traverser) walk() {
	for len(t.stack) > 0 {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.visit(w)
	}
}

func (t *Traverser) visit(w work) {
	vp := &t.fs.Viewport
	level := t.hierarchy.Level(w.id)
	if level < 0 {
		t.logger.Warn("Unknown tile in hierarchy", "id", w.id)
		return
	}

	if t.virtual(level) {
		if !vp.Visible(t.hierarchy.Bounds(w.id)) {
			return
		}
		t.visitedParent[w.id] = w.parent
		t.stats.Visited++
		t.refine(w.id, level, nil)
		return
	}

	n, ok := t.store.Get(w.id)
	if !ok {
		// Only roots are reached uncached; children are checked before being pushed.
		b := t.hierarchy.Bounds(w.id)
		if vp.Visible(b) {
			t.request(w.id, w.parent, level, b)
		}
		return
	}
	if !vp.Visible(n.Bounds) {
		return
	}
	t.visitedParent[w.id] = w.parent
	t.stats.Visited++
	if !n.IsLoaded() {
		return
	}
	if !t.shouldRefine(n) {
		t.selectTile(n.ID)
		return
	}
	t.refine(n.ID, n.Level, n)
}

func (t *Traverser) shouldRefine(n *tilenode.Node) bool {
	if t.virtual(n.Level) {
		return true
	}
	if t.config.MaxZoom >= 0 && n.Level >= t.config.MaxZoom {
		return false
	}
	ge := t.hierarchy.GeometricError(n.ID)
	return t.fs.Viewport.ScreenSpaceError(ge, n.Bounds) > t.config.MaxScreenSpaceError
}

// refine decides between the parent and its children. parent is nil for virtual tiles,
// which have nothing to fall back to.
func (t *Traverser) refine(id conceptual.TileID, level int, parent *tilenode.Node) {
	var children []conceptual.TileID
	if parent != nil {
		children = parent.Children(t.hierarchy.ChildIDs)
	} else {
		children = t.hierarchy.ChildIDs(id)
	}
	vp := &t.fs.Viewport

	var ready []conceptual.TileID
	missing, failed := false, false
	for _, c := range children {
		cn, cached := t.store.Get(c)
		var b orb.Bound
		if cached {
			b = cn.Bounds
		} else {
			b = t.hierarchy.Bounds(c)
		}
		if !vp.Visible(b) {
			continue
		}
		switch {
		case !cached && t.virtual(level+1):
			ready = append(ready, c)
		case !cached:
			t.request(c, id, level+1, b)
			missing = true
		case cn.State == tilenode.Errored:
			failed = true
		case cn.IsLoaded():
			ready = append(ready, c)
		default:
			missing = true
		}
	}

	if len(ready) == 0 && !missing && !failed {
		// Refinable, but no child is visible.
		if parent != nil {
			t.selectTile(id)
		}
		return
	}

	descend := true
	keepParent := false
	switch t.config.RefinementStrategy {
	case params.RefineNoOverlap:
		if missing || failed {
			descend = false
			keepParent = true
		}
	case params.RefineNever:
		keepParent = failed
	default:
		keepParent = missing || failed
	}
	if keepParent && parent != nil {
		t.selectTile(id)
	}
	if !descend {
		return
	}
	for i := len(ready) - 1; i >= 0; i-- {
		t.stack = append(t.stack, work{id: ready[i], parent: id})
	}
}

func (t *Traverser) selectTile(id conceptual.TileID) {
	if _, ok := t.selected[id]; ok {
		return
	}
	t.selected[id] = struct{}{}
	t.order = append(t.order, id)
	t.stats.Selected = len(t.order)
}

func (t *Traverser) request(id, parent conceptual.TileID, level int, b orb.Bound) {
	k := frameKey{t.fs.ViewportID(), t.fs.Number}
	if f, ok := t.inflight[id]; ok {
		if f.has(k) {
			return
		}
		// Move the registration forward; only the latest frame per viewport is ever asked about.
		kept := f.frames[:0]
		for _, fk := range f.frames {
			if fk.viewport == k.viewport {
				t.deregister(id, fk)
				continue
			}
			kept = append(kept, fk)
		}
		f.frames = append(kept, k)
		t.registry.Register(k.viewport, k.frame)
		return
	}
	n := tilenode.New(id, level, b, parent)
	n.MarkRequested()
	t.inflight[id] = &flight{node: n, frames: []frameKey{k}}
	t.registry.Register(k.viewport, k.frame)
	t.stats.Requested++
	t.fetcher.Fetch(n)
}

func (t *Traverser) deregister(id conceptual.TileID, k frameKey) {
	if err := t.registry.Deregister(k.viewport, k.frame); err != nil {
		t.violation(err.Error(), "id", id)
	}
}

// land drops id from flight and releases its frame registrations.
// It reports whether the current frame was among them.
func (t *Traverser) land(id conceptual.TileID) (*tilenode.Node, bool, bool) {
	f, ok := t.inflight[id]
	if !ok {
		return nil, false, false
	}
	delete(t.inflight, id)
	current := false
	for _, k := range f.frames {
		t.deregister(id, k)
		if t.fs != nil && k.viewport == t.fs.ViewportID() && k.frame == t.fs.Number {
			current = true
		}
	}
	return f.node, current, true
}

// Complete delivers a fetch result. The node is stored Loaded or Errored,
// its registrations are released, and the current frame is re-walked under
// its parent if that frame asked for it.
func (t *Traverser) Complete(id conceptual.TileID, content *tilenode.TileContent, err error) (*tilenode.Node, Outcome) {
	n, current, ok := t.land(id)
	if !ok {
		return nil, Unknown
	}
	if err != nil {
		n.Fail(err)
	} else {
		n.Load(content)
	}
	if perr := t.store.Put(n); perr != nil {
		t.violation(perr.Error(), "id", id)
		if existing, ok := t.store.Peek(id); ok {
			n = existing
		}
	}
	if !current {
		return n, Stale
	}
	t.resume(n)
	return n, Resumed
}

// Cancel releases an in-flight request that will never complete.
// The tile is not stored, so a later pass requests it again.
func (t *Traverser) Cancel(id conceptual.TileID) bool {
	_, _, ok := t.land(id)
	return ok
}

func (t *Traverser) resume(n *tilenode.Node) {
	t.stats.Resumed++
	if n.IsRoot() {
		t.stack = append(t.stack, work{id: n.ID})
		t.walk()
		return
	}
	grand, ok := t.visitedParent[n.ParentID]
	if !ok {
		// The parent fell out of this frame's walk; the next pass will pick the tile up.
		return
	}
	t.dropUnder(n.ParentID)
	t.stack = append(t.stack, work{id: n.ParentID, parent: grand})
	t.walk()
}

// dropUnder unselects root and everything selected beneath it this frame.
func (t *Traverser) dropUnder(root conceptual.TileID) {
	kept := t.order[:0]
	for _, id := range t.order {
		if t.descendsFrom(id, root) {
			delete(t.selected, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	t.stats.Selected = len(t.order)
}

func (t *Traverser) descendsFrom(id, root conceptual.TileID) bool {
	for cur := id; !cur.Empty(); {
		if cur == root {
			return true
		}
		p, ok := t.visitedParent[cur]
		if !ok {
			return false
		}
		cur = p
	}
	return false
}

// Reset forgets the frame, the selection and every in-flight request.
// Results still arriving for old requests come back Unknown.
func (t *Traverser) Reset() {
	t.fs = nil
	clear(t.inflight)
	clear(t.visitedParent)
	clear(t.selected)
	t.order = t.order[:0]
	t.stack = t.stack[:0]
	t.stats = Stats{}
	t.registry.Reset()
}
