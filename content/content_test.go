package content

import (
	"bytes"
	"errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb/geojson"
	"testing"
)

const fc = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}]}`

func gz(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zs(t *testing.T, b []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil)
}

func TestDecompress(t *testing.T) {
	plain := []byte(fc)
	for name, raw := range map[string][]byte{
		"none": plain,
		"gzip": gz(t, plain),
		"zstd": zs(t, plain),
	} {
		c, err := Decompress{}.Decode("0/0/0", raw)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(c.Payload.([]byte), plain) {
			t.Errorf("%s: expected payload %q, got %q", name, plain, c.Payload)
		}
		if c.ByteSize != int64(len(plain)) {
			t.Errorf("%s: expected byte size %d, got %d", name, len(plain), c.ByteSize)
		}
	}
}

func TestSniff(t *testing.T) {
	if Sniff(gz(t, []byte("x"))) != Gzip {
		t.Error("expected gzip")
	}
	if Sniff(zs(t, []byte("x"))) != Zstd {
		t.Error("expected zstd")
	}
	if Sniff([]byte("{}")) != None {
		t.Error("expected none")
	}
}

func TestDecompress_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 1<<20)
	for name, raw := range map[string][]byte{
		"gzip": gz(t, big),
		"zstd": zs(t, big),
	} {
		if _, err := (Decompress{MaxSize: 100}).Decode("x", raw); !errors.Is(err, ErrTooLarge) {
			t.Errorf("%s: expected ErrTooLarge, got %v", name, err)
		}
	}
}

func TestInflate_zstdAtLimit(t *testing.T) {
	plain := bytes.Repeat([]byte("b"), 100)
	out, err := Inflate(zs(t, plain), 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plain) {
		t.Errorf("expected %d bytes back, got %d", len(plain), len(out))
	}
}

func TestGeoJSON(t *testing.T) {
	c, err := Decompress{Next: GeoJSON{}}.Decode("x", gz(t, []byte(fc)))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := c.Payload.(*geojson.FeatureCollection)
	if !ok || len(got.Features) != 1 {
		t.Fatalf("expected one feature, got %v", c.Payload)
	}
	if _, err := (GeoJSON{}).Decode("x", []byte("nope")); err == nil {
		t.Error("expected error for invalid geojson")
	}
}
