// Package pending counts outstanding tile fetches per (viewport, frame).
package pending

import (
	"errors"
	"fmt"
	"github.com/rotblauer/tilestream/conceptual"
)

var ErrNotRegistered = errors.New("deregister without register")

type key struct {
	viewport conceptual.ViewportID
	frame    int64
}

// Registry is not safe for concurrent use.
type Registry struct {
	counts map[key]int
}

func NewRegistry() *Registry {
	return &Registry{counts: make(map[key]int)}
}

func (r *Registry) Register(viewport conceptual.ViewportID, frame int64) {
	r.counts[key{viewport, frame}]++
}

// Deregister decrements the count. Deregistering a key with no
// outstanding registrations is a caller bug; the count stays at zero.
func (r *Registry) Deregister(viewport conceptual.ViewportID, frame int64) error {
	k := key{viewport, frame}
	n, ok := r.counts[k]
	if !ok {
		return fmt.Errorf("%w: viewport=%s frame=%d", ErrNotRegistered, viewport, frame)
	}
	if n <= 1 {
		delete(r.counts, k)
		return nil
	}
	r.counts[k] = n - 1
	return nil
}

func (r *Registry) IsZero(viewport conceptual.ViewportID, frame int64) bool {
	return r.counts[key{viewport, frame}] == 0
}

func (r *Registry) Count(viewport conceptual.ViewportID, frame int64) int {
	return r.counts[key{viewport, frame}]
}

// Len is the number of (viewport, frame) pairs with outstanding registrations.
func (r *Registry) Len() int {
	return len(r.counts)
}

// Reset forgets every registration.
func (r *Registry) Reset() {
	clear(r.counts)
}
