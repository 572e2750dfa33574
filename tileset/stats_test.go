package tileset

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFrameWindow_singleFrame(t *testing.T) {
	w := newFrameWindow(8)
	w.record(4 * time.Millisecond)
	s := w.summary()
	if s.Frames != 1 || s.P95 != 4 || s.Median != 4 || s.Max != 4 {
		t.Errorf("expected every summary value 4ms for one frame, got %+v", s)
	}
	if _, err := json.Marshal(s); err != nil {
		t.Errorf("expected summary to marshal, got %v", err)
	}
}

func TestFrameWindow_empty(t *testing.T) {
	s := newFrameWindow(8).summary()
	if s != (FrameSummary{}) {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestTileset_StatsMarshalAfterOneUpdate(t *testing.T) {
	ts := newTestTileset(t, newTestSource(), nil)
	ts.Update(vp(world))
	if _, err := json.Marshal(ts.Stats()); err != nil {
		t.Errorf("expected stats to marshal after one frame, got %v", err)
	}
}
