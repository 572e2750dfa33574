/*
Package tileset is the facade tying a hierarchy and a data source to an LOD traversal.

A Tileset owns its tile cache, request scheduler, pending registry and traverser.
Everything it owns is driven from one goroutine (the driver), the one calling
Update, Poll, WaitLoaded, WaitIdle or Run. Fetches run in their own goroutines and
post results to an inbox the driver drains; nothing else touches tileset state.
*/
package tileset

import (
	"context"
	"errors"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/events"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/pending"
	"github.com/rotblauer/tilestream/scheduler"
	"github.com/rotblauer/tilestream/tilecache"
	"github.com/rotblauer/tilestream/traverser"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("tileset closed")

type result struct {
	gen     uint64
	id      conceptual.TileID
	handle  *scheduler.Handle
	content *tilenode.TileContent
	err     error
}

type Tileset struct {
	config    *params.TilesetConfig
	hierarchy hierarchy.Hierarchy
	source    tilenode.Source
	logger    *slog.Logger

	store     *tilecache.Store
	scheduler *scheduler.Scheduler
	registry  *pending.Registry
	traverser *traverser.Traverser
	priority  PriorityFunc

	ctx    context.Context
	cancel context.CancelFunc
	fetchg sync.WaitGroup

	inboxSize int
	inbox     chan result
	calls     chan func()

	// gen is bumped by ReloadAll; results from older generations are dropped.
	gen uint64

	// deferred holds requests that coalesced onto a fetch from an older generation.
	deferred map[conceptual.TileID]*tilenode.Node

	failures *ttlcache.Cache[conceptual.TileID, error]

	frame        int64
	lastViewport *viewport.Viewport
	prevSelected map[conceptual.TileID]struct{}
	closed       bool

	frames *frameWindow

	metricsRegistry metrics.Registry
	loadedC         metrics.Counter
	failedC         metrics.Counter
	evictedC        metrics.Counter
	staleC          metrics.Counter

	TileLoadedFeed event.FeedOf[events.TileLoaded]
	TileErrorFeed  event.FeedOf[events.TileError]
	SelectionFeed  event.FeedOf[events.Selection]
}

// New builds a tileset. The config is validated, and defaults filled, in place.
func New(config *params.TilesetConfig, h hierarchy.Hierarchy, source tilenode.Source, opts ...Option) (*Tileset, error) {
	if config == nil {
		config = params.DefaultTilesetConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("tileset config: %w", err)
	}
	if h == nil || source == nil {
		return nil, errors.New("tileset needs a hierarchy and a source")
	}

	// Won't work without this global setting.
	metrics.Enabled = true

	ctx, cancel := context.WithCancel(context.Background())
	ts := &Tileset{
		config:       config,
		hierarchy:    h,
		source:       source,
		logger:       slog.With("tileset", config.Name),
		priority:     DefaultPriority,
		ctx:          ctx,
		cancel:       cancel,
		inboxSize:    config.MaxConcurrentRequests * 4,
		calls:        make(chan func()),
		deferred:     make(map[conceptual.TileID]*tilenode.Node),
		prevSelected: make(map[conceptual.TileID]struct{}),
		frames:       newFrameWindow(config.FrameStatsWindow),
	}
	for _, opt := range opts {
		opt(ts)
	}
	if ts.metricsRegistry == nil {
		ts.metricsRegistry = metrics.NewRegistry()
	}
	ts.inbox = make(chan result, ts.inboxSize)

	prefix := "tileset/" + config.Name + "/"
	ts.loadedC = metrics.NewRegisteredCounter(prefix+"loaded", ts.metricsRegistry)
	ts.failedC = metrics.NewRegisteredCounter(prefix+"failed", ts.metricsRegistry)
	ts.evictedC = metrics.NewRegisteredCounter(prefix+"evicted", ts.metricsRegistry)
	ts.staleC = metrics.NewRegisteredCounter(prefix+"stale", ts.metricsRegistry)

	// Expiry is checked by the driver in expireFailures, so the cache
	// is never started and never fires callbacks on its own goroutines.
	ts.failures = ttlcache.New[conceptual.TileID, error](
		ttlcache.WithTTL[conceptual.TileID, error](config.ErrorRetryInterval),
		ttlcache.WithDisableTouchOnHit[conceptual.TileID, error](),
	)

	ts.store = tilecache.New(config.MaxCacheSlots, config.MaxCacheByteSize)
	ts.registry = pending.NewRegistry()
	ts.scheduler = scheduler.New(config.Name, config.MaxConcurrentRequests,
		scheduler.WithStrictInvariants(config.StrictInvariants),
		scheduler.WithRegistry(ts.metricsRegistry),
	)
	ts.traverser = traverser.New(config, h, ts.store, ts.registry, traverser.FetcherFunc(ts.fetch))
	ts.store.SetProtected(ts.protected)
	ts.store.OnEvict(func(n *tilenode.Node) {
		ts.evictedC.Inc(1)
	})

	ts.logger.Info("Tileset ready",
		"maxConcurrent", config.MaxConcurrentRequests,
		"maxSlots", config.MaxCacheSlots,
		"maxBytes", humanize.Bytes(uint64(config.MaxCacheByteSize)),
		"strategy", config.RefinementStrategy,
		"minZoom", config.MinZoom, "maxZoom", config.MaxZoom)
	return ts, nil
}

func (ts *Tileset) Name() string {
	return ts.config.Name
}

func (ts *Tileset) Config() *params.TilesetConfig {
	return ts.config
}

func (ts *Tileset) MetricsRegistry() metrics.Registry {
	return ts.metricsRegistry
}

// protected keeps the current frame's working set, and failures still backing off, in the cache.
func (ts *Tileset) protected(id conceptual.TileID) bool {
	if ts.traverser.Protected(id) {
		return true
	}
	if n, ok := ts.store.Peek(id); ok && n.State == tilenode.Errored {
		return ts.failures.Has(id)
	}
	return false
}

// Update runs one frame for vp and returns how many tiles changed selection state.
// Individual tile failures never fail an Update.
func (ts *Tileset) Update(vp *viewport.Viewport) int {
	if ts.closed {
		ts.logger.Warn("Update on closed tileset")
		return 0
	}
	if err := vp.Validate(); err != nil {
		ts.logger.Warn("Ignoring viewport", "error", err)
		return 0
	}
	start := time.Now()
	ts.drain()
	ts.expireFailures()

	ts.frame++
	snapshot := *vp
	ts.lastViewport = &snapshot
	fs := viewport.NewFrameState(ts.frame, vp)
	ts.store.BeginFrame(ts.frame)
	ts.traverser.Traverse(fs)

	changed := ts.settle()
	ts.frames.record(time.Since(start))
	ts.logger.Debug("Frame", "frame", ts.frame, "viewport", vp.ID,
		"selected", ts.traverser.Stats().Selected, "changed", changed,
		"inflight", ts.traverser.InFlightLen(), "cached", ts.store.Len(),
		"bytes", humanize.Bytes(uint64(ts.store.Bytes())))
	return changed
}

// Poll applies any completed fetches without starting a new frame,
// returning how many tiles changed selection state.
func (ts *Tileset) Poll() int {
	if ts.closed {
		return 0
	}
	ts.drain()
	return ts.settle()
}

// settle runs the post-traversal steps shared by Update and the completion paths.
func (ts *Tileset) settle() int {
	ts.scheduler.Tick()
	ts.store.Trim()
	return ts.diffSelection()
}

// IsLoaded reports whether the latest frame has no pending tiles.
func (ts *Tileset) IsLoaded() bool {
	return ts.traverser.IsLoaded()
}

// SelectedTiles returns the tiles to show for the latest frame.
func (ts *Tileset) SelectedTiles() []*tilenode.Node {
	ids := ts.traverser.Selected()
	out := make([]*tilenode.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := ts.store.Peek(id); ok {
			out = append(out, n)
		}
	}
	return out
}

func (ts *Tileset) SelectedIDs() []conceptual.TileID {
	return ts.traverser.Selected()
}

func (ts *Tileset) IsSelected(id conceptual.TileID) bool {
	return ts.traverser.IsSelected(id)
}

// Frame returns the latest frame number, 0 before the first Update.
func (ts *Tileset) Frame() int64 {
	return ts.frame
}

// ViewportID names the viewport the latest frame traversed, empty before the first Update.
func (ts *Tileset) ViewportID() conceptual.ViewportID {
	if fs := ts.traverser.Frame(); fs != nil {
		return fs.ViewportID()
	}
	return ""
}

// Tile returns a cached tile without touching it.
func (ts *Tileset) Tile(id conceptual.TileID) (*tilenode.Node, bool) {
	return ts.store.Peek(id)
}

func (ts *Tileset) Stats() Stats {
	return Stats{
		Name:        ts.config.Name,
		Frame:       ts.frame,
		Loaded:      ts.IsLoaded(),
		Selected:    len(ts.traverser.Selected()),
		CacheSlots:  ts.store.Len(),
		CacheBytes:  ts.store.Bytes(),
		InFlight:    ts.traverser.InFlightLen(),
		Backoff:     len(ts.failures.Items()),
		TilesLoaded: ts.loadedC.Snapshot().Count(),
		TilesFailed: ts.failedC.Snapshot().Count(),
		Evicted:     ts.evictedC.Snapshot().Count(),
		Stale:       ts.staleC.Snapshot().Count(),
		Scheduler:   ts.scheduler.Stats(),
		Traversal:   ts.traverser.Stats(),
		Frames:      ts.frames.summary(),
	}
}

func (ts *Tileset) diffSelection() int {
	ids := ts.traverser.Selected()
	next := make(map[conceptual.TileID]struct{}, len(ids))
	var added, removed []conceptual.TileID
	for _, id := range ids {
		next[id] = struct{}{}
		if _, ok := ts.prevSelected[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range ts.prevSelected {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	ts.prevSelected = next
	changed := len(added) + len(removed)
	if changed > 0 {
		fs := ts.traverser.Frame()
		sel := events.Selection{
			Tileset:  ts.config.Name,
			Frame:    ts.frame,
			Loaded:   ts.IsLoaded(),
			Added:    added,
			Removed:  removed,
			Selected: ids,
		}
		if fs != nil {
			sel.Viewport = fs.ViewportID()
		}
		ts.SelectionFeed.Send(sel)
	}
	return changed
}

// expireFailures drops errored tiles whose backoff is over so the next pass
// re-requests them. ttlcache hides expired items from Items and Range, so the
// store is walked instead.
func (ts *Tileset) expireFailures() {
	var retry []conceptual.TileID
	ts.store.Each(func(n *tilenode.Node) bool {
		if n.State == tilenode.Errored && !ts.failures.Has(n.ID) {
			retry = append(retry, n.ID)
		}
		return true
	})
	for _, id := range retry {
		ts.store.Remove(id)
		ts.logger.Debug("Retrying failed tile", "id", id)
	}
	ts.failures.DeleteExpired()
}

// ReloadAll drops all cached content and in-flight work and re-requests
// from the roots, eg. after the data source changed.
func (ts *Tileset) ReloadAll() int {
	if ts.closed {
		return 0
	}
	ts.logger.Info("Reloading all tiles", "cached", ts.store.Len(), "inflight", ts.traverser.InFlightLen())
	ts.scheduler.CancelQueued()
	ts.gen++
	ts.traverser.Reset()
	ts.store.Clear()
	ts.failures.DeleteAll()
	if ts.lastViewport == nil {
		return ts.diffSelection()
	}
	return ts.Update(ts.lastViewport)
}

// Close cancels outstanding fetches and releases all cached content.
// It must be called from the driver goroutine, and not while Run is running.
func (ts *Tileset) Close() error {
	if ts.closed {
		return nil
	}
	ts.closed = true
	ts.cancel()
	ts.scheduler.Close()
	ts.fetchg.Wait()
	ts.traverser.Reset()
	n := ts.store.Clear()
	ts.failures.DeleteAll()
	clear(ts.deferred)
	ts.prevSelected = make(map[conceptual.TileID]struct{})
	ts.logger.Info("Tileset closed", "released", n)
	return nil
}
