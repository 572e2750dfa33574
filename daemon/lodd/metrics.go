package lodd

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotblauer/tilestream/tileset"
	"net/http"
)

// initPrometheus registers gauges that read the last stats snapshot.
func (d *LODDaemon) initPrometheus() {
	d.promRegistry = prometheus.NewRegistry()
	labels := prometheus.Labels{"tileset": d.Config.Tileset.Name}

	gauge := func(name, help string, read func(st *tileset.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "tilestream",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 {
			d.mu.Lock()
			defer d.mu.Unlock()
			return read(&d.snapshot)
		})
	}
	counter := func(name, help string, read func(st *tileset.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "tilestream",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 {
			d.mu.Lock()
			defer d.mu.Unlock()
			return read(&d.snapshot)
		})
	}

	d.promRegistry.MustRegister(
		gauge("frame", "Latest frame number", func(st *tileset.Stats) float64 { return float64(st.Frame) }),
		gauge("selected_tiles", "Tiles selected for the latest frame", func(st *tileset.Stats) float64 { return float64(st.Selected) }),
		gauge("cache_slots", "Tiles held in the cache", func(st *tileset.Stats) float64 { return float64(st.CacheSlots) }),
		gauge("cache_bytes", "Bytes of tile content held in the cache", func(st *tileset.Stats) float64 { return float64(st.CacheBytes) }),
		gauge("in_flight_tiles", "Tiles requested and not yet completed", func(st *tileset.Stats) float64 { return float64(st.InFlight) }),
		gauge("backoff_tiles", "Failed tiles waiting out their retry interval", func(st *tileset.Stats) float64 { return float64(st.Backoff) }),
		gauge("requests_active", "Admitted tile fetches", func(st *tileset.Stats) float64 { return float64(st.Scheduler.Active) }),
		gauge("requests_queued", "Tile fetches waiting for a slot", func(st *tileset.Stats) float64 { return float64(st.Scheduler.Queued) }),
		gauge("frame_duration_p95_ms", "95th percentile Update duration over the recent window", func(st *tileset.Stats) float64 { return st.Frames.P95 }),
		gauge("loaded", "1 when the latest frame has no pending tiles", func(st *tileset.Stats) float64 {
			if st.Loaded {
				return 1
			}
			return 0
		}),
		counter("tiles_loaded_total", "Tiles loaded", func(st *tileset.Stats) float64 { return float64(st.TilesLoaded) }),
		counter("tiles_failed_total", "Tile fetches failed", func(st *tileset.Stats) float64 { return float64(st.TilesFailed) }),
		counter("tiles_evicted_total", "Tiles evicted from the cache", func(st *tileset.Stats) float64 { return float64(st.Evicted) }),
		counter("tiles_stale_total", "Completions no frame wanted anymore", func(st *tileset.Stats) float64 { return float64(st.Stale) }),
	)
}

// metricsHandler refreshes the snapshot from the driver, then serves the registry.
func (d *LODDaemon) metricsHandler() http.Handler {
	inner := promhttp.HandlerFor(d.promRegistry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
		defer cancel()
		if _, err := d.stats(ctx); err != nil {
			d.logger.Warn("Serving stale metrics", "error", err)
		}
		inner.ServeHTTP(w, r)
	})
}
