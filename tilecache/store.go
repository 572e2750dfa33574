/*
Package tilecache holds tile nodes in recency order under a slot and byte budget.

The list is intrusive and arena backed: entries live in a slice, link to each other by index,
and are found by id through a map. Freed entries are recycled, so steady-state
get/put/touch/remove do not allocate.

Budgets are soft. Eviction walks from the least recently used end and skips protected
nodes (a tileset protects its current selection). If only protected nodes remain the
store stays over budget until the selection changes.
*/
package tilecache

import (
	"errors"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/types/tilenode"
	"log/slog"
)

var ErrDuplicate = errors.New("tile already cached")

const nilIndex = -1

type entry struct {
	node       *tilenode.Node
	prev, next int
}

// Store is not safe for concurrent use.
type Store struct {
	maxSlots int
	maxBytes int64

	entries []entry
	free    []int
	index   map[conceptual.TileID]int

	// lru is the least recently used end, mru the other.
	lru, mru int

	bytes int64
	frame int64

	protected func(conceptual.TileID) bool
	onEvict   func(*tilenode.Node)
	logger    *slog.Logger
}

// New returns an empty store. A zero budget is unlimited.
func New(maxSlots int, maxBytes int64) *Store {
	return &Store{
		maxSlots: maxSlots,
		maxBytes: maxBytes,
		index:    make(map[conceptual.TileID]int),
		lru:      nilIndex,
		mru:      nilIndex,
		logger:   slog.With("tilecache", fmt.Sprintf("slots=%d bytes=%s", maxSlots, humanize.Bytes(uint64(maxBytes)))),
	}
}

// SetProtected installs the predicate naming nodes that must not be evicted.
func (s *Store) SetProtected(fn func(conceptual.TileID) bool) {
	s.protected = fn
}

// OnEvict is called for every node removed by eviction (not by Remove or Clear).
func (s *Store) OnEvict(fn func(*tilenode.Node)) {
	s.onEvict = fn
}

// BeginFrame sets the frame number stamped on nodes by Get and Touch.
func (s *Store) BeginFrame(frame int64) {
	s.frame = frame
}

func (s *Store) Len() int {
	return len(s.index)
}

func (s *Store) Bytes() int64 {
	return s.bytes
}

func (s *Store) MaxSlots() int {
	return s.maxSlots
}

func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Store) isProtected(id conceptual.TileID) bool {
	return s.protected != nil && s.protected(id)
}

func (s *Store) unlink(i int) {
	e := &s.entries[i]
	if e.prev != nilIndex {
		s.entries[e.prev].next = e.next
	} else {
		s.lru = e.next
	}
	if e.next != nilIndex {
		s.entries[e.next].prev = e.prev
	} else {
		s.mru = e.prev
	}
	e.prev, e.next = nilIndex, nilIndex
}

func (s *Store) pushMRU(i int) {
	e := &s.entries[i]
	e.prev, e.next = s.mru, nilIndex
	if s.mru != nilIndex {
		s.entries[s.mru].next = i
	} else {
		s.lru = i
	}
	s.mru = i
}

func (s *Store) alloc(n *tilenode.Node) int {
	if k := len(s.free); k > 0 {
		i := s.free[k-1]
		s.free = s.free[:k-1]
		s.entries[i] = entry{node: n, prev: nilIndex, next: nilIndex}
		return i
	}
	s.entries = append(s.entries, entry{node: n, prev: nilIndex, next: nilIndex})
	return len(s.entries) - 1
}

func (s *Store) release(i int) *tilenode.Node {
	n := s.entries[i].node
	s.unlink(i)
	s.entries[i].node = nil
	s.free = append(s.free, i)
	delete(s.index, n.ID)
	s.bytes -= n.ByteSize
	return n
}

// Get returns the node for id, marking it most recently used and touched this frame.
func (s *Store) Get(id conceptual.TileID) (*tilenode.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	s.touch(i)
	return s.entries[i].node, true
}

// Peek returns the node for id without changing recency.
func (s *Store) Peek(id conceptual.TileID) (*tilenode.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.entries[i].node, true
}

func (s *Store) Contains(id conceptual.TileID) bool {
	_, ok := s.index[id]
	return ok
}

// Touch marks id most recently used. It reports whether id is cached.
func (s *Store) Touch(id conceptual.TileID) bool {
	i, ok := s.index[id]
	if ok {
		s.touch(i)
	}
	return ok
}

func (s *Store) touch(i int) {
	s.entries[i].node.LastTouchedFrame = s.frame
	if s.mru == i {
		return
	}
	s.unlink(i)
	s.pushMRU(i)
}

// Put inserts n as most recently used, evicting unprotected nodes first
// if n would not fit the budget. A node already cached is left alone.
// Negative byte sizes are stored as 0.
func (s *Store) Put(n *tilenode.Node) error {
	if _, ok := s.index[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.ID)
	}
	if n.ByteSize < 0 {
		n.ByteSize = 0
	}
	s.EvictWhile(func(*tilenode.Node) bool {
		return s.wouldOverflow(n.ByteSize)
	})
	i := s.alloc(n)
	s.index[n.ID] = i
	s.bytes += n.ByteSize
	n.LastTouchedFrame = s.frame
	s.pushMRU(i)
	return nil
}

// Remove deletes id from the store, returning the removed node.
func (s *Store) Remove(id conceptual.TileID) (*tilenode.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.release(i), true
}

// EvictWhile walks from the least recently used end, skipping protected nodes,
// and evicts each candidate for which pred holds. It stops at the first candidate
// pred rejects, or when there are none left. It returns the number evicted.
func (s *Store) EvictWhile(pred func(*tilenode.Node) bool) int {
	evicted := 0
	for i := s.lru; i != nilIndex; {
		next := s.entries[i].next
		n := s.entries[i].node
		if s.isProtected(n.ID) {
			i = next
			continue
		}
		if !pred(n) {
			break
		}
		s.release(i)
		evicted++
		if s.onEvict != nil {
			s.onEvict(n)
		}
		i = next
	}
	return evicted
}

// OverBudget reports whether the store exceeds either budget.
func (s *Store) OverBudget() bool {
	return (s.maxSlots > 0 && len(s.index) > s.maxSlots) ||
		(s.maxBytes > 0 && s.bytes > s.maxBytes)
}

func (s *Store) wouldOverflow(incoming int64) bool {
	return (s.maxSlots > 0 && len(s.index)+1 > s.maxSlots) ||
		(s.maxBytes > 0 && s.bytes+incoming > s.maxBytes)
}

// Trim evicts unprotected nodes until the store is within budget or nothing evictable remains.
func (s *Store) Trim() int {
	n := s.EvictWhile(func(*tilenode.Node) bool {
		return s.OverBudget()
	})
	if s.OverBudget() {
		s.logger.Debug("Over budget, remaining tiles protected",
			"len", len(s.index), "bytes", humanize.Bytes(uint64(s.bytes)))
	}
	return n
}

// Clear drops every node.
func (s *Store) Clear() int {
	n := len(s.index)
	s.entries = s.entries[:0]
	s.free = s.free[:0]
	clear(s.index)
	s.lru, s.mru = nilIndex, nilIndex
	s.bytes = 0
	return n
}

// Each calls fn from least to most recently used until it returns false.
// fn must not mutate the store.
func (s *Store) Each(fn func(*tilenode.Node) bool) {
	for i := s.lru; i != nilIndex; i = s.entries[i].next {
		if !fn(s.entries[i].node) {
			return
		}
	}
}

// IDs returns the cached ids from least to most recently used.
func (s *Store) IDs() []conceptual.TileID {
	out := make([]conceptual.TileID, 0, len(s.index))
	s.Each(func(n *tilenode.Node) bool {
		out = append(out, n.ID)
		return true
	})
	return out
}
