package params

import "time"

type LODDaemonConfig struct {
	ListenerConfig

	Tileset *TilesetConfig

	// FrameInterval is how often the daemon re-runs Update against the latest viewport.
	// Viewports posted in between are applied immediately.
	FrameInterval time.Duration

	// Influx, if non-nil with a URL, receives per-frame stats.
	Influx *InfluxConfig
}

func DefaultLODDaemonConfig() *LODDaemonConfig {
	return &LODDaemonConfig{
		ListenerConfig: DefaultListenerConfig(),
		Tileset:        DefaultTilesetConfig(),
		FrameInterval:  250 * time.Millisecond,
		Influx:         nil,
	}
}

type InfluxConfig struct {
	URL    string
	Token  string `json:"-"`
	Org    string
	Bucket string

	// Interval between exports. Defaults to 10s.
	Interval time.Duration
}
