package s2

import (
	"github.com/paulmach/orb"
	"testing"
)

func TestHierarchy_Faces(t *testing.T) {
	h, err := NewHierarchy(CellLevel8)
	if err != nil {
		t.Fatal(err)
	}
	roots := h.Roots()
	if len(roots) != 6 {
		t.Fatalf("expected 6 face roots, got %d", len(roots))
	}
	for _, r := range roots {
		if h.Level(r) != 0 {
			t.Errorf("expected level 0 for %s, got %d", r, h.Level(r))
		}
		if _, ok := h.Parent(r); ok {
			t.Errorf("expected face %s to have no parent", r)
		}
		b := h.Bounds(r)
		if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
			t.Errorf("expected non-empty bound for %s, got %v", r, b)
		}
	}
}

func TestHierarchy_ChildrenRoundTrip(t *testing.T) {
	h, err := NewHierarchy(CellLevel2)
	if err != nil {
		t.Fatal(err)
	}
	root := h.Roots()[0]
	children := h.ChildIDs(root)
	if len(children) != 4 {
		t.Fatalf("expected 4 children, got %v", children)
	}
	for _, c := range children {
		p, ok := h.Parent(c)
		if !ok || p != root {
			t.Errorf("expected parent %s for %s, got %s", root, c, p)
		}
		if h.GeometricError(c) >= h.GeometricError(root) {
			t.Errorf("expected child error below parent for %s", c)
		}
		for _, gc := range h.ChildIDs(c) {
			if h.ChildIDs(gc) != nil {
				t.Errorf("expected %s to be a leaf at max level", gc)
			}
			if h.GeometricError(gc) != 0 {
				t.Errorf("expected leaf error 0 for %s", gc)
			}
		}
	}
}

func TestCellIDForPointLevel(t *testing.T) {
	pt := orb.Point{-93.25, 44.98}
	cellID := CellIDForPointLevel(pt, CellLevel13)
	if cellID.Level() != 13 {
		t.Fatalf("expected level 13, got %d", cellID.Level())
	}
	id := TileID(cellID)
	back, err := ParseTileID(id)
	if err != nil {
		t.Fatal(err)
	}
	if back != cellID {
		t.Errorf("expected %v, got %v", cellID, back)
	}
	if !CellBound(cellID).Contains(pt) {
		t.Errorf("expected bound of %s to contain %v", id, pt)
	}
	if _, err := ParseTileID("0/0/0"); err == nil {
		t.Error("expected error for non-s2 id")
	}
}
