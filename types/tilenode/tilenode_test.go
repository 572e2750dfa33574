package tilenode

import (
	"errors"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"testing"
)

func TestNode_Lifecycle(t *testing.T) {
	n := New("1/0/0", 1, orb.Bound{Min: orb.Point{-180, 0}, Max: orb.Point{0, 85}}, "0/0/0")
	if n.State != Unrequested {
		t.Fatalf("expected unrequested, got %s", n.State)
	}
	if n.IsRoot() {
		t.Error("node with parent is not a root")
	}
	n.MarkRequested()
	if n.State != Requested {
		t.Fatalf("expected requested, got %s", n.State)
	}
	n.Load(&TileContent{ByteSize: 42, Payload: []byte("x")})
	if !n.IsLoaded() || n.ByteSize != 42 {
		t.Fatalf("expected loaded with 42 bytes, got %s %d", n.State, n.ByteSize)
	}

	boom := errors.New("boom")
	n.Fail(boom)
	if n.State != Errored || n.ByteSize != 0 || n.Content != nil {
		t.Fatalf("expected errored and empty, got %s %d %v", n.State, n.ByteSize, n.Content)
	}
	if !errors.Is(n.Err, boom) {
		t.Errorf("expected error to be kept, got %v", n.Err)
	}
	n.Reset()
	if n.State != Unrequested || n.Err != nil {
		t.Errorf("expected reset, got %s %v", n.State, n.Err)
	}
}

func TestNode_LoadNegativeSize(t *testing.T) {
	n := New("0/0/0", 0, orb.Bound{}, "")
	n.Load(&TileContent{ByteSize: -10})
	if n.ByteSize != 0 {
		t.Errorf("expected negative size clamped to 0, got %d", n.ByteSize)
	}
	n.Load(nil)
	if n.ByteSize != 0 || !n.IsLoaded() {
		t.Errorf("expected empty loaded node, got %s %d", n.State, n.ByteSize)
	}
}

func TestNode_ChildrenMemoized(t *testing.T) {
	calls := 0
	childIDs := func(id conceptual.TileID) []conceptual.TileID {
		calls++
		return []conceptual.TileID{id + "/a", id + "/b"}
	}
	n := New("r", 0, orb.Bound{}, "")
	if !n.IsRoot() {
		t.Error("expected root")
	}
	for i := 0; i < 3; i++ {
		if got := n.Children(childIDs); len(got) != 2 || got[0] != "r/a" {
			t.Fatalf("unexpected children %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
