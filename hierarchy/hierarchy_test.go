package hierarchy

import (
	"errors"
	"github.com/paulmach/orb/maptile"
	"github.com/rotblauer/tilestream/conceptual"
	"testing"
)

func TestQuadtree_Tree(t *testing.T) {
	q, err := NewQuadtree(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	roots := q.Roots()
	if len(roots) != 1 || roots[0] != "0/0/0" {
		t.Fatalf("expected single root 0/0/0, got %v", roots)
	}
	children := q.ChildIDs("0/0/0")
	if len(children) != 4 {
		t.Fatalf("expected 4 children, got %v", children)
	}
	for _, c := range children {
		if q.Level(c) != 1 {
			t.Errorf("expected level 1 for %s, got %d", c, q.Level(c))
		}
		p, ok := q.Parent(c)
		if !ok || p != "0/0/0" {
			t.Errorf("expected parent 0/0/0 for %s, got %s", c, p)
		}
		if !q.Bounds("0/0/0").Contains(q.Bounds(c).Center()) {
			t.Errorf("child %s not inside root", c)
		}
	}
	if got := q.ChildIDs("2/1/1"); got != nil {
		t.Errorf("expected leaf at max zoom, got %v", got)
	}
	if q.GeometricError("2/1/1") != 0 {
		t.Error("expected zero geometric error at leaf")
	}
	if q.GeometricError("0/0/0") <= q.GeometricError("1/0/0") {
		t.Error("expected geometric error to shrink with depth")
	}
	if _, ok := q.Parent("0/0/0"); ok {
		t.Error("root has no parent")
	}
	if q.Level("3/0/0") != -1 {
		t.Error("expected tiles past max zoom to be unknown")
	}
}

func TestQuadtree_RootZoom(t *testing.T) {
	q, err := NewQuadtree(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Roots()) != 4 {
		t.Fatalf("expected 4 roots at zoom 1, got %d", len(q.Roots()))
	}
	if _, ok := q.Parent("1/1/0"); ok {
		t.Error("expected root at root zoom")
	}
	if _, err := NewQuadtree(3, 1); err == nil {
		t.Error("expected error for max below root")
	}
}

func TestParseQuadtreeID(t *testing.T) {
	tile, err := ParseQuadtreeID("3/4/2")
	if err != nil {
		t.Fatal(err)
	}
	if tile != maptile.New(4, 2, 3) {
		t.Errorf("expected 3/4/2, got %v", tile)
	}
	for _, bad := range []conceptual.TileID{"", "1/2", "a/b/c", "1/5/0"} {
		if _, err := ParseQuadtreeID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

const treeManifest = `{
  "root": {
    "id": "1", "bounds": [0, 0, 4, 4], "geometricError": 16,
    "children": [
      {"id": "1/1", "bounds": [0, 0, 2, 4], "geometricError": 4},
      {"id": "1/2", "bounds": [2, 0, 4, 4],
        "children": [{"id": "1/2/1", "bounds": [2, 0, 4, 2]}]}
    ]
  }
}`

func TestParseManifest_Tree(t *testing.T) {
	m, err := ParseManifest([]byte(treeManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 4 {
		t.Fatalf("expected 4 tiles, got %d", m.Len())
	}
	if got := m.Roots(); len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected root 1, got %v", got)
	}
	children := m.ChildIDs("1")
	if len(children) != 2 || children[0] != "1/1" || children[1] != "1/2" {
		t.Errorf("expected document order [1/1 1/2], got %v", children)
	}
	if m.Level("1/2/1") != 2 {
		t.Errorf("expected level 2, got %d", m.Level("1/2/1"))
	}
	if m.GeometricError("1") != 16 {
		t.Errorf("expected explicit error 16, got %v", m.GeometricError("1"))
	}
	if got := m.GeometricError("1/2"); got != 4.0/DefaultTilePixels {
		t.Errorf("expected derived error, got %v", got)
	}
	if m.GeometricError("1/2/1") != 0 {
		t.Error("expected leaf error 0")
	}
}

func TestParseManifest_Nodes(t *testing.T) {
	m, err := ParseManifest([]byte(`{"nodes": [
		{"id": "b", "parent": "a", "bounds": [0,0,1,1]},
		{"id": "a", "bounds": [0,0,2,2], "geometricError": 2},
		{"id": "c", "parent": "b", "bounds": [0,0,0.5,0.5]}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Level("c") != 2 {
		t.Errorf("expected level 2, got %d", m.Level("c"))
	}
	if p, _ := m.Parent("b"); p != "a" {
		t.Errorf("expected parent a, got %s", p)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":  `{`,
		"no roots":  `{"other": 1}`,
		"bounds":    `{"root": {"id": "r", "bounds": [0, 0]}}`,
		"duplicate": `{"root": {"id": "r", "bounds": [0,0,1,1], "children": [{"id": "r", "bounds": [0,0,1,1]}]}}`,
		"orphan":    `{"nodes": [{"id": "a", "parent": "x", "bounds": [0,0,1,1]}]}`,
		"cycle":     `{"nodes": [{"id": "r", "bounds": [0,0,1,1]}, {"id": "a", "parent": "b", "bounds": [0,0,1,1]}, {"id": "b", "parent": "a", "bounds": [0,0,1,1]}]}`,
	}
	for name, doc := range cases {
		if _, err := ParseManifest([]byte(doc)); !errors.Is(err, ErrInvalidManifest) {
			t.Errorf("%s: expected ErrInvalidManifest, got %v", name, err)
		}
	}
}
