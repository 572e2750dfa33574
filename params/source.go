package params

import (
	"path/filepath"
	"time"
)

type SourceKind string

const (
	SourceHTTP SourceKind = "http"
	SourceBolt SourceKind = "bolt"
	SourceS3   SourceKind = "s3"
)

type HTTPSourceConfig struct {
	// URLTemplate is expanded per tile. Recognized placeholders are
	// {z}, {x}, {y} (slippy ids only) and {id} (any hierarchy).
	URLTemplate string

	// UserAgent is sent with every request. Most public tile servers require one.
	UserAgent string

	Timeout time.Duration

	// Decompress sniffs and inflates gzip/zstd payloads before decoding.
	Decompress bool
}

func DefaultHTTPSourceConfig() *HTTPSourceConfig {
	return &HTTPSourceConfig{
		URLTemplate: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		UserAgent:   "tilestream/0.1 (+https://github.com/rotblauer/tilestream)",
		Timeout:     30 * time.Second,
		Decompress:  true,
	}
}

type BoltSourceConfig struct {
	// Path is the bbolt database file.
	Path   string
	Bucket []byte
}

func DefaultBoltSourceConfig() *BoltSourceConfig {
	return &BoltSourceConfig{
		Path:   filepath.Join(DatadirRoot, TilesBoltDBName),
		Bucket: TilesBoltBucket,
	}
}

type S3SourceConfig struct {
	Bucket string
	Region string

	// Objects are keyed Prefix + TileID + Suffix, eg. "tiles/" + "3/4/2" + ".pbf".
	Prefix string
	Suffix string

	Timeout time.Duration
}

func DefaultS3SourceConfig() *S3SourceConfig {
	return &S3SourceConfig{
		Region:  "us-east-1",
		Prefix:  "tiles/",
		Suffix:  "",
		Timeout: 10 * time.Second,
	}
}
