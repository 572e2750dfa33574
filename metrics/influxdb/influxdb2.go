package influxdb

import (
	"errors"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/tileset"
	"sync"
	"time"
)

var ErrNoURL = errors.New("influxdb url not configured")

// StatsPoint converts a tileset stats snapshot to a line protocol point
// in the "tileset" measurement, tagged by tileset name.
func StatsPoint(st tileset.Stats, at time.Time) *write.Point {
	loaded := 0
	if st.Loaded {
		loaded = 1
	}
	return influxdb2.NewPointWithMeasurement("tileset").
		SetTime(at).
		AddTag("name", st.Name).
		AddField("frame", st.Frame).
		AddField("loaded", loaded).
		AddField("selected", st.Selected).
		AddField("cache_slots", st.CacheSlots).
		AddField("cache_bytes", st.CacheBytes).
		AddField("in_flight", st.InFlight).
		AddField("backoff", st.Backoff).
		AddField("tiles_loaded", st.TilesLoaded).
		AddField("tiles_failed", st.TilesFailed).
		AddField("evicted", st.Evicted).
		AddField("stale", st.Stale).
		AddField("scheduler_active", st.Scheduler.Active).
		AddField("scheduler_queued", st.Scheduler.Queued).
		AddField("scheduler_cancelled", st.Scheduler.Cancelled).
		AddField("traversal_visited", st.Traversal.Visited).
		AddField("traversal_requested", st.Traversal.Requested).
		AddField("frame_mean_ms", st.Frames.Mean).
		AddField("frame_p95_ms", st.Frames.P95)
}

// ExportStats posts stats snapshots to an InfluxDB Write API.
// The Write API buffers and flushes; the last error encountered is returned.
func ExportStats(config *params.InfluxConfig, snapshots ...tileset.Stats) error {
	if config == nil || config.URL == "" {
		return ErrNoURL
	}
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(config.URL, config.Token, opts)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	// Errors must be read before any writes, and drained, or the writer blocks.
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	now := time.Now()
	for _, st := range snapshots {
		writeAPI.WritePoint(StatsPoint(st, now))
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}
