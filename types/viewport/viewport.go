package viewport

import (
	"errors"
	"fmt"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"math"
)

// DefaultFovY is a 45 degree vertical field of view, in radians.
const DefaultFovY = math.Pi / 4

// minDistance keeps the screen-space error finite when the camera sits on a tile.
const minDistance = 1e-9

// Viewport is a read-only camera snapshot.
// All lengths (bounds, camera position, altitude) share the units of the hierarchy's bounds.
type Viewport struct {
	ID conceptual.ViewportID `json:"id"`

	// Bound is the visible region.
	Bound orb.Bound `json:"bound"`

	// Camera is the camera position projected onto the ground plane.
	Camera   orb.Point `json:"camera"`
	Altitude float64   `json:"altitude"`

	// FovY is the vertical field of view, in radians.
	FovY float64 `json:"fovY"`

	ScreenWidth  int `json:"screenWidth"`
	ScreenHeight int `json:"screenHeight"`
}

// TopDown builds a viewport looking straight down at bound,
// at the altitude where bound's height exactly fills the screen.
func TopDown(id conceptual.ViewportID, bound orb.Bound, screenWidth, screenHeight int) *Viewport {
	height := bound.Top() - bound.Bottom()
	return &Viewport{
		ID:           id,
		Bound:        bound,
		Camera:       bound.Center(),
		Altitude:     (height / 2) / math.Tan(DefaultFovY/2),
		FovY:         DefaultFovY,
		ScreenWidth:  screenWidth,
		ScreenHeight: screenHeight,
	}
}

var ErrInvalidViewport = errors.New("invalid viewport")

func (v *Viewport) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil", ErrInvalidViewport)
	}
	if v.ID.Empty() {
		return fmt.Errorf("%w: missing id", ErrInvalidViewport)
	}
	if v.ScreenWidth <= 0 || v.ScreenHeight <= 0 {
		return fmt.Errorf("%w: screen %dx%d", ErrInvalidViewport, v.ScreenWidth, v.ScreenHeight)
	}
	if v.FovY <= 0 || v.FovY >= math.Pi {
		return fmt.Errorf("%w: fovY %v", ErrInvalidViewport, v.FovY)
	}
	if v.Bound.Max[0] <= v.Bound.Min[0] || v.Bound.Max[1] <= v.Bound.Min[1] {
		return fmt.Errorf("%w: empty bound %v", ErrInvalidViewport, v.Bound)
	}
	if v.Altitude < 0 {
		return fmt.Errorf("%w: negative altitude %v", ErrInvalidViewport, v.Altitude)
	}
	return nil
}

// Visible reports whether b overlaps the visible region.
// Bounds that only share an edge with the viewport are not visible.
func (v *Viewport) Visible(b orb.Bound) bool {
	return b.Min[0] < v.Bound.Max[0] && b.Max[0] > v.Bound.Min[0] &&
		b.Min[1] < v.Bound.Max[1] && b.Max[1] > v.Bound.Min[1]
}

// Distance is the distance from the camera to the closest point of b.
func (v *Viewport) Distance(b orb.Bound) float64 {
	dx := math.Max(0, math.Max(b.Min[0]-v.Camera[0], v.Camera[0]-b.Max[0]))
	dy := math.Max(0, math.Max(b.Min[1]-v.Camera[1], v.Camera[1]-b.Max[1]))
	return math.Max(minDistance, math.Sqrt(dx*dx+dy*dy+v.Altitude*v.Altitude))
}

// ScreenSpaceError projects a tile's geometric error onto the screen, in pixels.
func (v *Viewport) ScreenSpaceError(geometricError float64, b orb.Bound) float64 {
	d := v.Distance(b)
	return geometricError * float64(v.ScreenHeight) / (2 * d * math.Tan(v.FovY/2))
}

// Diagonal is the length of the visible region's diagonal.
func (v *Viewport) Diagonal() float64 {
	w := v.Bound.Max[0] - v.Bound.Min[0]
	h := v.Bound.Max[1] - v.Bound.Min[1]
	return math.Sqrt(w*w + h*h)
}

// FrameState is the immutable input to one traversal pass.
type FrameState struct {
	Number   int64
	Viewport Viewport
}

// NewFrameState snapshots vp by value so later caller mutations don't leak into the pass.
func NewFrameState(number int64, vp *Viewport) *FrameState {
	return &FrameState{Number: number, Viewport: *vp}
}

func (f *FrameState) ViewportID() conceptual.ViewportID {
	return f.Viewport.ID
}
