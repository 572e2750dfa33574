package source

import (
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/tilestream/conceptual"
	"log/slog"
	"sync/atomic"
	"time"
)

// SeedLogInterval is how often Seed logs its progress.
var SeedLogInterval = 5 * time.Second

// seedMeter logs stored tiles and bytes per second while a seed runs.
type seedMeter struct {
	total     int
	started   time.Time
	ticker    *time.Ticker
	done      chan struct{}
	last      atomic.Value // conceptual.TileID
	tileMeter metrics.Meter
	sizeMeter metrics.Meter
}

func newSeedMeter(interval time.Duration, total int) *seedMeter {
	// Won't work without this global setting.
	metrics.Enabled = true

	m := &seedMeter{
		total:     total,
		started:   time.Now(),
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		tileMeter: metrics.NewMeter(),
		sizeMeter: metrics.NewMeter(),
	}
	go m.run()
	return m
}

func (m *seedMeter) mark(id conceptual.TileID, size int) {
	m.last.Store(id)
	m.tileMeter.Mark(1)
	m.sizeMeter.Mark(int64(size))
}

func (m *seedMeter) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.log()
		}
	}
}

func (m *seedMeter) log() {
	tiles := m.tileMeter.Snapshot()
	size := m.sizeMeter.Snapshot()
	last, _ := m.last.Load().(conceptual.TileID)
	slog.Info("Seeding",
		"stored", humanize.Comma(tiles.Count()),
		"of", humanize.Comma(int64(m.total)),
		"last", last,
		"tps", int64(tiles.Rate1()),
		"bps", humanize.Bytes(uint64(size.Rate1())),
		"total.bytes", humanize.Bytes(uint64(size.Count())),
		"running", time.Since(m.started).Round(time.Second))
}

func (m *seedMeter) stop() {
	m.ticker.Stop()
	close(m.done)
	m.tileMeter.Stop()
	m.sizeMeter.Stop()
}
