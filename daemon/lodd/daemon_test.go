package lodd

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/common"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/rotblauer/tilestream/types/viewport"
	"github.com/tidwall/gjson"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"
)

const testManifest = `{
  "root": {
    "id": "1", "bounds": [0, 0, 4, 4], "geometricError": 16,
    "children": [
      {"id": "1/1", "bounds": [0, 0, 2, 4], "geometricError": 0},
      {"id": "1/2", "bounds": [2, 0, 4, 4], "geometricError": 0}
    ]
  }
}`

// newTestLODDaemon starts a daemon over a two-level manifest and an in-memory source.
func newTestLODDaemon(t *testing.T) (*LODDaemon, *httptest.Server) {
	t.Helper()
	t.Cleanup(common.SlogResetLevel(slog.LevelWarn))
	h, err := hierarchy.ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	source := tilenode.SourceFunc(func(ctx context.Context, id conceptual.TileID) (*tilenode.TileContent, error) {
		return &tilenode.TileContent{ByteSize: 10, Payload: id.String()}, nil
	})
	config := params.DefaultLODDaemonConfig()
	config.Tileset = params.DefaultTestTilesetConfig()
	config.FrameInterval = 10 * time.Millisecond
	d, err := NewLODDaemon(config, h, source)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	srv := httptest.NewServer(d.NewRouter())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		if err := d.Wait(); err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	})
	return d, srv
}

func postViewport(t *testing.T, srv *httptest.Server, vp *viewport.Viewport) (*http.Response, []byte) {
	t.Helper()
	b, _ := json.Marshal(vp)
	resp, err := http.Post(srv.URL+"/viewport", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestLODDaemon_ping(t *testing.T) {
	req := httptest.NewRequest("GET", "http://localhost/ping", nil)
	w := httptest.NewRecorder()
	pingPong(w, req)
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("status code not 200")
	}
	if string(body) != "pong" {
		t.Errorf("body is not pong: %s", string(body))
	}
}

func TestLODDaemon_viewportToSelection(t *testing.T) {
	_, srv := newTestLODDaemon(t)
	vp := viewport.TopDown("main", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, 256, 256)

	resp, body := postViewport(t, srv, vp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	if !gjson.GetBytes(body, "changed").Bool() {
		t.Errorf("expected changed=true, got %s", body)
	}

	resp, body = postViewport(t, srv, vp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for repeated viewport, got %d", resp.StatusCode)
	}
	if gjson.GetBytes(body, "changed").Bool() {
		t.Errorf("expected changed=false, got %s", body)
	}

	deadline := time.Now().Add(5 * time.Second)
	var sel selection
	for time.Now().Before(deadline) {
		_, body := get(t, srv, "/selected")
		if err := json.Unmarshal(body, &sel); err != nil {
			t.Fatal(err)
		}
		if sel.Loaded && len(sel.Selected) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sort.Slice(sel.Selected, func(i, j int) bool { return sel.Selected[i] < sel.Selected[j] })
	want := []conceptual.TileID{"1/1", "1/2"}
	if !reflect.DeepEqual(sel.Selected, want) {
		t.Fatalf("expected %v, got %+v", want, sel)
	}
	if sel.Viewport != "main" {
		t.Errorf("expected selection for viewport main, got %q", sel.Viewport)
	}
}

func TestLODDaemon_selectionNamesViewport(t *testing.T) {
	_, srv := newTestLODDaemon(t)
	full := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}
	postViewport(t, srv, viewport.TopDown("left", full, 256, 256))
	postViewport(t, srv, viewport.TopDown("right", full, 256, 256))

	seen := make(map[conceptual.ViewportID]bool)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !(seen["left"] && seen["right"]) {
		_, body := get(t, srv, "/selected")
		var sel selection
		if err := json.Unmarshal(body, &sel); err != nil {
			t.Fatal(err)
		}
		if sel.Frame > 0 {
			seen[sel.Viewport] = true
		}
		time.Sleep(2 * time.Millisecond)
	}
	for _, id := range []conceptual.ViewportID{"left", "right"} {
		if !seen[id] {
			t.Errorf("expected a selection reported for %s, saw %v", id, seen)
		}
	}
}

func TestLODDaemon_invalidViewport(t *testing.T) {
	_, srv := newTestLODDaemon(t)
	resp, _ := postViewport(t, srv, &viewport.Viewport{ID: "bad"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	r, err := http.Post(srv.URL+"/viewport", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for broken json, got %d", r.StatusCode)
	}
}

func TestLODDaemon_statusAndMetrics(t *testing.T) {
	_, srv := newTestLODDaemon(t)
	vp := viewport.TopDown("main", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, 256, 256)
	postViewport(t, srv, vp)

	resp, body := get(t, srv, "/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %s", ct)
	}
	if gjson.GetBytes(body, "tileset.frame").Int() < 1 {
		t.Errorf("expected a frame in status, got %s", body)
	}
	if gjson.GetBytes(body, "viewports.0").String() != "main" {
		t.Errorf("expected viewport main listed, got %s", body)
	}
	if gjson.GetBytes(body, "uptime").String() == "" {
		t.Error("uptime is empty")
	}

	resp, body = get(t, srv, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"tilestream_cache_slots", "tilestream_frame", "tilestream_tiles_loaded_total"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("expected %s in metrics output", name)
		}
	}

	resp, _ = get(t, srv, "/debug/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from debug metrics, got %d", resp.StatusCode)
	}
}

func TestLODDaemon_submitBeforeStart(t *testing.T) {
	h, err := hierarchy.ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	source := tilenode.SourceFunc(func(ctx context.Context, id conceptual.TileID) (*tilenode.TileContent, error) {
		return &tilenode.TileContent{}, nil
	})
	config := params.DefaultLODDaemonConfig()
	config.Tileset = params.DefaultTestTilesetConfig()
	d, err := NewLODDaemon(config, h, source)
	if err != nil {
		t.Fatal(err)
	}
	vp := viewport.TopDown("main", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, 256, 256)
	if _, err := d.Submit(context.Background(), vp); err != ErrNotStarted {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}
