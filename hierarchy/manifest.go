package hierarchy

import (
	"errors"
	"fmt"
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/tidwall/gjson"
	"os"
)

var ErrInvalidManifest = errors.New("invalid manifest")

type manifestEntry struct {
	level    int
	parent   conceptual.TileID
	children []conceptual.TileID
	bound    orb.Bound
	geomErr  float64
}

// Manifest is an explicit tile tree read from JSON.
// Two layouts are accepted:
//
//	{"root": {"id": "r", "bounds": [w,s,e,n], "geometricError": 8, "children": [ ... ]}}
//	{"nodes": [{"id": "r", "bounds": [w,s,e,n]}, {"id": "a", "parent": "r", "bounds": [...]}]}
//
// "roots" (an array of trees) may be used in place of "root".
// A missing geometricError is derived from the bound height.
type Manifest struct {
	roots   []conceptual.TileID
	entries map[conceptual.TileID]*manifestEntry
}

func ReadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not json", ErrInvalidManifest)
	}
	doc := gjson.ParseBytes(data)
	m := &Manifest{entries: make(map[conceptual.TileID]*manifestEntry)}
	var err error
	switch {
	case doc.Get("root").Exists():
		err = m.readTrees([]gjson.Result{doc.Get("root")})
	case doc.Get("roots").IsArray():
		err = m.readTrees(doc.Get("roots").Array())
	case doc.Get("nodes").IsArray():
		err = m.readNodes(doc.Get("nodes").Array())
	default:
		err = fmt.Errorf("%w: expected root, roots or nodes", ErrInvalidManifest)
	}
	if err != nil {
		return nil, err
	}
	if len(m.roots) == 0 {
		return nil, fmt.Errorf("%w: no roots", ErrInvalidManifest)
	}
	return m, nil
}

func readBound(r gjson.Result) (orb.Bound, error) {
	b := r.Get("bounds").Array()
	if len(b) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: bounds must be [w,s,e,n], got %s", ErrInvalidManifest, r.Get("bounds").Raw)
	}
	bound := orb.Bound{
		Min: orb.Point{b[0].Float(), b[1].Float()},
		Max: orb.Point{b[2].Float(), b[3].Float()},
	}
	if bound.Max[0] < bound.Min[0] || bound.Max[1] < bound.Min[1] {
		return orb.Bound{}, fmt.Errorf("%w: inverted bounds %v", ErrInvalidManifest, bound)
	}
	return bound, nil
}

func (m *Manifest) add(r gjson.Result, parent conceptual.TileID, level int) (conceptual.TileID, error) {
	id := conceptual.TileID(r.Get("id").String())
	if id.Empty() {
		return "", fmt.Errorf("%w: node without id", ErrInvalidManifest)
	}
	if _, ok := m.entries[id]; ok {
		return "", fmt.Errorf("%w: duplicate id %q", ErrInvalidManifest, id)
	}
	bound, err := readBound(r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	e := &manifestEntry{level: level, parent: parent, bound: bound, geomErr: -1}
	if ge := r.Get("geometricError"); ge.Exists() {
		e.geomErr = ge.Float()
	}
	m.entries[id] = e
	return id, nil
}

func (m *Manifest) readTrees(trees []gjson.Result) error {
	type frame struct {
		r      gjson.Result
		parent conceptual.TileID
		level  int
	}
	stack := make([]frame, 0, len(trees))
	// Push in reverse so roots and children keep document order.
	for i := len(trees) - 1; i >= 0; i-- {
		stack = append(stack, frame{r: trees[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		id, err := m.add(f.r, f.parent, f.level)
		if err != nil {
			return err
		}
		if f.parent.Empty() {
			m.roots = append(m.roots, id)
		} else {
			p := m.entries[f.parent]
			p.children = append(p.children, id)
		}
		children := f.r.Get("children").Array()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{r: children[i], parent: id, level: f.level + 1})
		}
	}
	m.fillGeometricErrors()
	return nil
}

func (m *Manifest) readNodes(nodes []gjson.Result) error {
	order := make([]conceptual.TileID, 0, len(nodes))
	for _, n := range nodes {
		id, err := m.add(n, conceptual.TileID(n.Get("parent").String()), 0)
		if err != nil {
			return err
		}
		order = append(order, id)
	}
	for _, id := range order {
		e := m.entries[id]
		if e.parent.Empty() {
			m.roots = append(m.roots, id)
			continue
		}
		p, ok := m.entries[e.parent]
		if !ok {
			return fmt.Errorf("%w: %q has unknown parent %q", ErrInvalidManifest, id, e.parent)
		}
		p.children = append(p.children, id)
	}
	// Levels by walking down from the roots; anything unreached is part of a cycle.
	seen := 0
	stack := append([]conceptual.TileID(nil), m.roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		seen++
		e := m.entries[id]
		for _, c := range e.children {
			m.entries[c].level = e.level + 1
			stack = append(stack, c)
		}
	}
	if seen != len(m.entries) {
		return fmt.Errorf("%w: %d nodes unreachable from roots (cycle?)", ErrInvalidManifest, len(m.entries)-seen)
	}
	m.fillGeometricErrors()
	return nil
}

func (m *Manifest) fillGeometricErrors() {
	for _, e := range m.entries {
		if e.geomErr >= 0 {
			continue
		}
		if len(e.children) == 0 {
			e.geomErr = 0
			continue
		}
		e.geomErr = BoundGeometricError(e.bound, DefaultTilePixels)
	}
}

// Len returns the number of tiles in the manifest.
func (m *Manifest) Len() int {
	return len(m.entries)
}

func (m *Manifest) Roots() []conceptual.TileID {
	return append([]conceptual.TileID(nil), m.roots...)
}

func (m *Manifest) Level(id conceptual.TileID) int {
	e, ok := m.entries[id]
	if !ok {
		return -1
	}
	return e.level
}

func (m *Manifest) Parent(id conceptual.TileID) (conceptual.TileID, bool) {
	e, ok := m.entries[id]
	if !ok || e.parent.Empty() {
		return "", false
	}
	return e.parent, true
}

func (m *Manifest) ChildIDs(id conceptual.TileID) []conceptual.TileID {
	e, ok := m.entries[id]
	if !ok || len(e.children) == 0 {
		return nil
	}
	return append([]conceptual.TileID(nil), e.children...)
}

func (m *Manifest) Bounds(id conceptual.TileID) orb.Bound {
	e, ok := m.entries[id]
	if !ok {
		return orb.Bound{}
	}
	return e.bound
}

func (m *Manifest) GeometricError(id conceptual.TileID) float64 {
	e, ok := m.entries[id]
	if !ok {
		return 0
	}
	return e.geomErr
}

var _ Hierarchy = (*Manifest)(nil)
