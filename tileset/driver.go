package tileset

import (
	"context"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/events"
	"github.com/rotblauer/tilestream/scheduler"
	"github.com/rotblauer/tilestream/traverser"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
)

// fetch is the traverser's Fetcher: it queues n with the scheduler and,
// once admitted, loads it from the source on its own goroutine.
func (ts *Tileset) fetch(n *tilenode.Node) {
	id := n.ID
	gen := ts.gen
	ticket := ts.scheduler.Schedule(id, ts.priorityOf)
	if h, _ := ticket.Result(); h != nil {
		// Still held by a fetch from before a reload; retry once it lands.
		ts.deferred[id] = n
		return
	}
	ticket.Then(func(h *scheduler.Handle, err error) {
		if err != nil {
			if gen == ts.gen {
				ts.traverser.Cancel(id)
			}
			return
		}
		ts.fetchg.Add(1)
		go func() {
			defer ts.fetchg.Done()
			content, err := ts.source.FetchTile(ts.ctx, id)
			select {
			case ts.inbox <- result{gen: gen, id: id, handle: h, content: content, err: err}:
			case <-ts.ctx.Done():
			}
		}()
	})
}

func (ts *Tileset) priorityOf(id conceptual.TileID) float64 {
	fs := ts.traverser.Frame()
	if fs == nil || !ts.traverser.Referenced(id) {
		return -1
	}
	n, ok := ts.traverser.InFlightNode(id)
	if !ok {
		return -1
	}
	return ts.priority(n, fs)
}

// drain applies every result already waiting in the inbox.
func (ts *Tileset) drain() {
	for {
		select {
		case r := <-ts.inbox:
			ts.apply(r)
		default:
			return
		}
	}
}

func (ts *Tileset) apply(r result) {
	r.handle.Done()
	if r.gen != ts.gen {
		ts.staleC.Inc(1)
		if n, ok := ts.deferred[r.id]; ok {
			delete(ts.deferred, r.id)
			if ts.traverser.InFlight(r.id) {
				ts.fetch(n)
			}
		}
		return
	}
	n, outcome := ts.traverser.Complete(r.id, r.content, r.err)
	if outcome == traverser.Unknown {
		ts.staleC.Inc(1)
		return
	}
	if outcome == traverser.Stale {
		ts.staleC.Inc(1)
	}
	if r.err != nil {
		ts.failedC.Inc(1)
		ts.failures.Set(r.id, r.err, ttlcache.DefaultTTL)
		ts.logger.Warn("Tile fetch failed", "id", r.id, "error", r.err)
		if ts.config.OnTileError != nil {
			ts.config.OnTileError(r.id, r.err)
		}
		ts.TileErrorFeed.Send(events.TileError{
			Tileset: ts.config.Name,
			ID:      r.id,
			Err:     r.err,
			Message: r.err.Error(),
			Frame:   ts.frame,
		})
		return
	}
	ts.loadedC.Inc(1)
	ts.TileLoadedFeed.Send(events.TileLoaded{
		Tileset:  ts.config.Name,
		ID:       r.id,
		Level:    n.Level,
		ByteSize: n.ByteSize,
		Frame:    ts.frame,
	})
}

// WaitLoaded applies completions until the latest frame has no pending tiles.
// Resumed traversals refine the selection as tiles arrive.
// Before the first Update there is no frame to wait for, and it blocks until ctx is done.
func (ts *Tileset) WaitLoaded(ctx context.Context) error {
	if ts.closed {
		return ErrClosed
	}
	for {
		ts.drain()
		ts.settle()
		if ts.IsLoaded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-ts.inbox:
			ts.apply(r)
		}
	}
}

// WaitIdle is like WaitLoaded but also waits out fetches the latest frame
// no longer wants, so nothing is in flight when it returns.
func (ts *Tileset) WaitIdle(ctx context.Context) error {
	if ts.closed {
		return ErrClosed
	}
	for {
		ts.drain()
		ts.settle()
		if ts.scheduler.Active() == 0 && ts.scheduler.Queued() == 0 && ts.traverser.InFlightLen() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-ts.inbox:
			ts.apply(r)
		}
	}
}

// Run makes the calling goroutine the driver: it runs a frame for every viewport
// received, applies completions as they arrive, and serves Call.
// It returns when ctx is done or viewports is closed.
func (ts *Tileset) Run(ctx context.Context, viewports <-chan *viewport.Viewport) error {
	if ts.closed {
		return ErrClosed
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case vp, ok := <-viewports:
			if !ok {
				return nil
			}
			ts.Update(vp)
		case r := <-ts.inbox:
			ts.apply(r)
			ts.drain()
			ts.settle()
		case fn := <-ts.calls:
			fn()
		}
	}
}

// Call runs fn on the driver goroutine while Run is running, and waits for it.
func (ts *Tileset) Call(ctx context.Context, fn func(ts *Tileset)) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn(ts)
	}
	select {
	case ts.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
