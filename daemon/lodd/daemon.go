/*
Package lodd serves a tileset over HTTP.

Clients post viewports; the daemon drives the tileset with them on its own
goroutine and reports the selection back over JSON endpoints and a websocket.
Everything that reads tileset state goes through Tileset.Call.
*/
package lodd

import (
	"context"
	"errors"
	"fmt"
	"github.com/olahol/melody"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/metrics/influxdb"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/tileset"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrNotStarted = errors.New("lod daemon not started")

type LODDaemon struct {
	Config *params.LODDaemonConfig

	tileset        *tileset.Tileset
	logger         *slog.Logger
	melodyInstance *melody.Melody
	promRegistry   *prometheus.Registry
	started        time.Time

	viewports chan *viewport.Viewport

	mu      sync.Mutex
	latest  map[conceptual.ViewportID]*viewport.Viewport
	hashes  map[conceptual.ViewportID]uint64
	running bool
	// snapshot backs the prometheus gauges; it is refreshed before each scrape.
	snapshot tileset.Stats

	driverDone chan error
}

func NewLODDaemon(config *params.LODDaemonConfig, h hierarchy.Hierarchy, source tilenode.Source, opts ...tileset.Option) (*LODDaemon, error) {
	logger := slog.With("daemon", "lod")
	if config == nil {
		logger.Warn("No config provided, using default")
		config = params.DefaultLODDaemonConfig()
	}
	if config.Tileset == nil {
		config.Tileset = params.DefaultTilesetConfig()
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = params.DefaultLODDaemonConfig().FrameInterval
	}
	ts, err := tileset.New(config.Tileset, h, source, opts...)
	if err != nil {
		return nil, err
	}
	d := &LODDaemon{
		Config:     config,
		tileset:    ts,
		logger:     logger,
		viewports:  make(chan *viewport.Viewport),
		latest:     make(map[conceptual.ViewportID]*viewport.Viewport),
		hashes:     make(map[conceptual.ViewportID]uint64),
		driverDone: make(chan error, 1),
	}
	d.initMelody()
	d.initPrometheus()
	return d, nil
}

// Start begins driving the tileset and returns immediately.
// Background goroutines stop when ctx is done; Wait returns once the driver has exited.
func (d *LODDaemon) Start(ctx context.Context) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	d.started = time.Now()

	go func() {
		err := d.tileset.Run(ctx, d.viewports)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		d.driverDone <- err
	}()
	go d.frameLoop(ctx)
	go d.broadcastSelections(ctx)
	if d.Config.Influx != nil && d.Config.Influx.URL != "" {
		go d.exportLoop(ctx)
	}
}

// Wait blocks until the driver exits, then closes the tileset and the websocket hub.
func (d *LODDaemon) Wait() error {
	err := <-d.driverDone
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	_ = d.melodyInstance.Close()
	if cerr := d.tileset.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Run starts the daemon, serves HTTP on the configured listener until ctx is done,
// and then shuts everything down.
func (d *LODDaemon) Run(ctx context.Context) error {
	lc := d.Config.ListenerConfig
	if strings.HasPrefix(lc.Network, "unix") {
		if _, err := os.Stat(lc.Address); err == nil {
			d.logger.Warn("Removing existing socket file", "address", lc.Address)
			os.Remove(lc.Address)
		}
		defer os.Remove(lc.Address)
	}
	listener, err := net.Listen(lc.Network, lc.Address)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", lc.Network, lc.Address, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.Start(ctx)

	server := &http.Server{Handler: d.NewRouter()}
	serveErr := make(chan error, 1)
	go func() {
		d.logger.Info("LOD daemon listening", "network", lc.Network, "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cancel()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		d.logger.Warn("HTTP shutdown", "error", serr)
	}
	if werr := d.Wait(); werr != nil && err == nil {
		err = werr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	d.logger.Info("LOD daemon stopped")
	return err
}

// Submit queues a viewport for the driver unless it is identical to the last one
// seen for the same id. It reports whether the viewport was new.
func (d *LODDaemon) Submit(ctx context.Context, vp *viewport.Viewport) (bool, error) {
	if err := vp.Validate(); err != nil {
		return false, err
	}
	fp, err := fingerprint(vp)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return false, ErrNotStarted
	}
	if last, ok := d.hashes[vp.ID]; ok && last == fp {
		d.mu.Unlock()
		return false, nil
	}
	d.hashes[vp.ID] = fp
	d.latest[vp.ID] = vp
	d.mu.Unlock()

	select {
	case d.viewports <- vp:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Viewports lists the ids of every viewport seen, sorted.
func (d *LODDaemon) Viewports() []conceptual.ViewportID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]conceptual.ViewportID, 0, len(d.latest))
	for id := range d.latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// frameLoop re-runs the latest viewports every FrameInterval so that
// selections keep refining without clients re-posting.
func (d *LODDaemon) frameLoop(ctx context.Context) {
	ticker := time.NewTicker(d.Config.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, id := range d.Viewports() {
			d.mu.Lock()
			vp := d.latest[id]
			d.mu.Unlock()
			select {
			case d.viewports <- vp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *LODDaemon) exportLoop(ctx context.Context) {
	interval := d.Config.Influx.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st, err := d.stats(ctx)
		if err != nil {
			continue
		}
		if err := influxdb.ExportStats(d.Config.Influx, st); err != nil {
			d.logger.Warn("Failed to export stats to influx", "error", err)
		}
	}
}

// stats fetches a snapshot from the driver and keeps it for the gauges.
func (d *LODDaemon) stats(ctx context.Context) (tileset.Stats, error) {
	var st tileset.Stats
	if err := d.tileset.Call(ctx, func(ts *tileset.Tileset) {
		st = ts.Stats()
	}); err != nil {
		return st, err
	}
	d.mu.Lock()
	d.snapshot = st
	d.mu.Unlock()
	return st, nil
}

// selection is the latest frame's result. With several viewports posted,
// frames alternate between them and Viewport names which one this is.
type selection struct {
	Viewport conceptual.ViewportID `json:"viewport"`
	Frame    int64                 `json:"frame"`
	Loaded   bool                  `json:"loaded"`
	Selected []conceptual.TileID   `json:"selected"`
}

func (d *LODDaemon) selection(ctx context.Context) (selection, error) {
	var sel selection
	err := d.tileset.Call(ctx, func(ts *tileset.Tileset) {
		sel = selection{Viewport: ts.ViewportID(), Frame: ts.Frame(), Loaded: ts.IsLoaded(), Selected: ts.SelectedIDs()}
	})
	return sel, err
}
