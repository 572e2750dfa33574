/*
Package content turns raw tile bytes into tile content.

The engine treats payloads as opaque. Decoders here cover the common
transport concerns (gzip or zstd framing) and a GeoJSON payload; anything
format specific is left to the embedding application's own Decoder.
*/
package content

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb/geojson"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/types/tilenode"
	"io"
)

var ErrTooLarge = errors.New("decoded tile too large")

// DefaultMaxDecodedSize caps inflated payloads.
const DefaultMaxDecodedSize = 64 << 20

type Decoder interface {
	Decode(id conceptual.TileID, raw []byte) (*tilenode.TileContent, error)
}

type DecoderFunc func(id conceptual.TileID, raw []byte) (*tilenode.TileContent, error)

func (f DecoderFunc) Decode(id conceptual.TileID, raw []byte) (*tilenode.TileContent, error) {
	return f(id, raw)
}

// Raw keeps the bytes as the payload.
type Raw struct{}

func (Raw) Decode(_ conceptual.TileID, raw []byte) (*tilenode.TileContent, error) {
	return &tilenode.TileContent{ByteSize: int64(len(raw)), Payload: raw}, nil
}

// GeoJSON parses a FeatureCollection payload.
type GeoJSON struct{}

func (GeoJSON) Decode(id conceptual.TileID, raw []byte) (*tilenode.TileContent, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", id, err)
	}
	return &tilenode.TileContent{ByteSize: int64(len(raw)), Payload: fc}, nil
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression names the framing Sniff found.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

func Sniff(raw []byte) Compression {
	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		return Gzip
	case bytes.HasPrefix(raw, zstdMagic):
		return Zstd
	}
	return None
}

// Decompress inflates gzip or zstd framed bytes, then hands them to Next (Raw if nil).
type Decompress struct {
	Next Decoder

	// MaxSize caps the inflated size, DefaultMaxDecodedSize if 0.
	MaxSize int64
}

func (d Decompress) Decode(id conceptual.TileID, raw []byte) (*tilenode.TileContent, error) {
	next := d.Next
	if next == nil {
		next = Raw{}
	}
	limit := d.MaxSize
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}
	inflated, err := Inflate(raw, limit)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", id, err)
	}
	return next.Decode(id, inflated)
}

// Inflate returns raw decompressed according to its magic bytes, or raw itself.
// A limit of 0 or less means DefaultMaxDecodedSize.
func Inflate(raw []byte, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}
	switch Sniff(raw) {
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(out)) > limit {
			return nil, ErrTooLarge
		}
		return out, nil
	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(raw),
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(limit)))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, limit+1))
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, ErrTooLarge
		}
		if err != nil {
			return nil, err
		}
		if int64(len(out)) > limit {
			return nil, ErrTooLarge
		}
		return out, nil
	}
	return raw, nil
}
