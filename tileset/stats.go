package tileset

import (
	"github.com/montanaflynn/stats"
	"github.com/rotblauer/tilestream/common"
	"github.com/rotblauer/tilestream/scheduler"
	"github.com/rotblauer/tilestream/traverser"
	"math"
	"time"
)

// FrameSummary summarizes recent Update durations, in milliseconds.
type FrameSummary struct {
	Frames int     `json:"frames"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

type frameWindow struct {
	durations *common.RingBuffer[float64]
}

func newFrameWindow(size int) *frameWindow {
	return &frameWindow{durations: common.NewRingBuffer[float64](size)}
}

func (w *frameWindow) record(d time.Duration) {
	w.durations.Add(float64(d) / float64(time.Millisecond))
}

func (w *frameWindow) summary() FrameSummary {
	data := stats.Float64Data(w.durations.Values())
	s := FrameSummary{Frames: len(data)}
	if len(data) == 0 {
		return s
	}
	s.Mean = finite(stats.Mean(data))
	s.Median = finite(stats.Median(data))
	s.P95 = finite(stats.PercentileNearestRank(data, 95))
	s.Max = finite(stats.Max(data))
	return s
}

// finite zeroes errors and NaN so summaries always encode as JSON.
func finite(v float64, err error) float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Stats is a snapshot of a tileset's state.
type Stats struct {
	Name        string          `json:"name"`
	Frame       int64           `json:"frame"`
	Loaded      bool            `json:"loaded"`
	Selected    int             `json:"selected"`
	CacheSlots  int             `json:"cacheSlots"`
	CacheBytes  int64           `json:"cacheBytes"`
	InFlight    int             `json:"inFlight"`
	Backoff     int             `json:"backoff"`
	TilesLoaded int64           `json:"tilesLoaded"`
	TilesFailed int64           `json:"tilesFailed"`
	Evicted     int64           `json:"evicted"`
	Stale       int64           `json:"stale"`
	Scheduler   scheduler.Stats `json:"scheduler"`
	Traversal   traverser.Stats `json:"traversal"`
	Frames      FrameSummary    `json:"frames"`
}
