package tileset

import (
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
)

// PriorityFunc orders queued fetches, lower first; negative cancels.
// It is only consulted for tiles the latest frame still references;
// everything else is cancelled regardless.
type PriorityFunc func(n *tilenode.Node, fs *viewport.FrameState) float64

// DefaultPriority loads coarse, near tiles first and cancels tiles that left the view.
func DefaultPriority(n *tilenode.Node, fs *viewport.FrameState) float64 {
	vp := &fs.Viewport
	if !vp.Visible(n.Bounds) {
		return -1
	}
	d := vp.Diagonal()
	if d <= 0 {
		return float64(n.Level)
	}
	return vp.Distance(n.Bounds)/d + float64(n.Level)
}

type Option func(ts *Tileset)

func WithPriority(fn PriorityFunc) Option {
	return func(ts *Tileset) {
		ts.priority = fn
	}
}

// WithMetricsRegistry registers tileset and scheduler metrics in r.
func WithMetricsRegistry(r metrics.Registry) Option {
	return func(ts *Tileset) {
		ts.metricsRegistry = r
	}
}

// WithInboxSize sets the buffer of the completion channel fetch goroutines write to.
func WithInboxSize(n int) Option {
	return func(ts *Tileset) {
		if n > 0 {
			ts.inboxSize = n
		}
	}
}
