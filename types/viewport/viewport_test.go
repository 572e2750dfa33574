package viewport

import (
	"errors"
	"github.com/paulmach/orb"
	"math"
	"testing"
)

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

func TestTopDown_FillsScreen(t *testing.T) {
	vp := TopDown("main", world, 512, 512)
	if err := vp.Validate(); err != nil {
		t.Fatal(err)
	}
	// A tile exactly the size of the view, at 256px native resolution,
	// is magnified 2x on a 512px screen.
	geometricError := (world.Top() - world.Bottom()) / 256
	sse := vp.ScreenSpaceError(geometricError, world)
	if math.Abs(sse-2) > 1e-9 {
		t.Errorf("expected sse 2, got %v", sse)
	}
}

func TestViewport_Visible(t *testing.T) {
	vp := TopDown("main", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 100, 100)
	cases := []struct {
		b    orb.Bound
		want bool
	}{
		{orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{6, 6}}, true},
		{orb.Bound{Min: orb.Point{-5, -5}, Max: orb.Point{1, 1}}, true},
		{orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{20, 10}}, false}, // shares an edge
		{orb.Bound{Min: orb.Point{11, 11}, Max: orb.Point{12, 12}}, false},
	}
	for _, c := range cases {
		if got := vp.Visible(c.b); got != c.want {
			t.Errorf("visible(%v): expected %v, got %v", c.b, c.want, got)
		}
	}
}

func TestViewport_DistanceFallsOff(t *testing.T) {
	vp := TopDown("main", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 100, 100)
	near := orb.Bound{Min: orb.Point{4, 4}, Max: orb.Point{6, 6}}
	far := orb.Bound{Min: orb.Point{40, 40}, Max: orb.Point{42, 42}}
	if math.Abs(vp.Distance(near)-vp.Altitude) > 1e-9 {
		t.Errorf("expected camera over tile at altitude %v, got %v", vp.Altitude, vp.Distance(near))
	}
	if vp.ScreenSpaceError(1, far) >= vp.ScreenSpaceError(1, near) {
		t.Error("expected far tiles to have a smaller screen-space error")
	}
}

func TestViewport_Validate(t *testing.T) {
	var nilvp *Viewport
	if err := nilvp.Validate(); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("expected invalid, got %v", err)
	}
	vp := TopDown("", world, 10, 10)
	if err := vp.Validate(); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("expected invalid for missing id, got %v", err)
	}
	vp = TopDown("x", world, 0, 10)
	if err := vp.Validate(); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("expected invalid for empty screen, got %v", err)
	}
}

func TestFrameState_Snapshot(t *testing.T) {
	vp := TopDown("main", world, 10, 10)
	fs := NewFrameState(7, vp)
	vp.Altitude = 1
	if fs.Viewport.Altitude == 1 {
		t.Error("frame state must not see later viewport mutations")
	}
	if fs.ViewportID() != "main" || fs.Number != 7 {
		t.Errorf("unexpected frame state %+v", fs)
	}
}
