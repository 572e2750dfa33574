/*
Package scheduler is an admission-control queue for tile fetches.

Requests are keyed by tile id and coalesced: while a key is outstanding
(queued, or admitted but not yet Done) scheduling it again returns the same Ticket.
On each tick every queued request's priority is recomputed; negative priorities cancel,
the rest are ordered ascending (ties by insertion order) and admitted until
maxConcurrent requests are in flight.

A Scheduler is not safe for concurrent use. It belongs to the driver goroutine
of its tileset, and so do the continuations it runs.
*/
package scheduler

import (
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/tilestream/conceptual"
	"log/slog"
	"sort"
)

var ErrCancelled = errors.New("request cancelled")

// PriorityFunc returns the urgency of a queued request, lower first.
// A negative value cancels the request.
type PriorityFunc func(key conceptual.TileID) float64

// Handle is an admitted request's slot. Done must be called exactly once
// when the fetch it guards completes or fails.
type Handle struct {
	s    *Scheduler
	key  conceptual.TileID
	done bool
}

func (h *Handle) Key() conceptual.TileID {
	return h.key
}

// Done frees the slot and immediately ticks so a queued request can take it.
func (h *Handle) Done() {
	if h.done {
		h.s.violation("handle done twice", "key", h.key)
		return
	}
	h.done = true
	h.s.release(h.key)
}

// Ticket is the future result of Schedule.
type Ticket struct {
	key      conceptual.TileID
	priority PriorityFunc
	seq      uint64
	value    float64

	resolved chan struct{}
	handle   *Handle
	err      error
	thens    []func(*Handle, error)
}

// Resolved is closed once the ticket is admitted or cancelled.
func (t *Ticket) Resolved() <-chan struct{} {
	return t.resolved
}

func (t *Ticket) isResolved() bool {
	select {
	case <-t.resolved:
		return true
	default:
		return false
	}
}

// Result returns the admitted handle, or ErrCancelled.
// Before resolution it returns nil, nil.
func (t *Ticket) Result() (*Handle, error) {
	if !t.isResolved() {
		return nil, nil
	}
	return t.handle, t.err
}

// Then registers a continuation. It runs during the tick that resolves the ticket,
// or right away if the ticket is already resolved.
func (t *Ticket) Then(fn func(*Handle, error)) {
	if t.isResolved() {
		fn(t.handle, t.err)
		return
	}
	t.thens = append(t.thens, fn)
}

func (t *Ticket) resolve(h *Handle, err error) {
	t.handle, t.err = h, err
	close(t.resolved)
	thens := t.thens
	t.thens = nil
	for _, fn := range thens {
		fn(h, err)
	}
}

type Scheduler struct {
	name          string
	maxConcurrent int
	strict        bool
	logger        *slog.Logger

	queue       []*Ticket
	outstanding map[conceptual.TileID]*Ticket
	active      int
	seq         uint64

	dirty   bool
	ticking bool
	closed  bool

	registry  metrics.Registry
	admitted  metrics.Counter
	cancelled metrics.Counter
	coalesced metrics.Counter
	activeG   metrics.Gauge
	queuedG   metrics.Gauge
}

type Option func(s *Scheduler)

// WithStrictInvariants panics on misuse (double Done) instead of logging it.
func WithStrictInvariants(strict bool) Option {
	return func(s *Scheduler) {
		s.strict = strict
	}
}

// WithRegistry registers the scheduler's metrics in r instead of a private registry.
func WithRegistry(r metrics.Registry) Option {
	return func(s *Scheduler) {
		s.registry = r
	}
}

func New(name string, maxConcurrent int, opts ...Option) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	// Won't work without this global setting.
	metrics.Enabled = true

	s := &Scheduler{
		name:          name,
		maxConcurrent: maxConcurrent,
		logger:        slog.With("scheduler", name),
		outstanding:   make(map[conceptual.TileID]*Ticket),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = metrics.NewRegistry()
	}
	prefix := "scheduler/" + name + "/"
	s.admitted = metrics.NewRegisteredCounter(prefix+"admitted", s.registry)
	s.cancelled = metrics.NewRegisteredCounter(prefix+"cancelled", s.registry)
	s.coalesced = metrics.NewRegisteredCounter(prefix+"coalesced", s.registry)
	s.activeG = metrics.NewRegisteredGauge(prefix+"active", s.registry)
	s.queuedG = metrics.NewRegisteredGauge(prefix+"queued", s.registry)
	return s
}

func (s *Scheduler) violation(msg string, args ...any) {
	if s.strict {
		panic(fmt.Sprintf("scheduler %s: %s %v", s.name, msg, args))
	}
	s.logger.Error("Invariant violation", append([]any{"reason", msg}, args...)...)
}

// Schedule queues a request for key, or returns the outstanding ticket for it.
// The request is not considered until the next Tick.
func (s *Scheduler) Schedule(key conceptual.TileID, priority PriorityFunc) *Ticket {
	if t, ok := s.outstanding[key]; ok {
		s.coalesced.Inc(1)
		return t
	}
	s.seq++
	t := &Ticket{
		key:      key,
		priority: priority,
		seq:      s.seq,
		resolved: make(chan struct{}),
	}
	if s.closed {
		t.resolve(nil, ErrCancelled)
		return t
	}
	s.outstanding[key] = t
	s.queue = append(s.queue, t)
	s.dirty = true
	s.queuedG.Update(int64(len(s.queue)))
	return t
}

type resolution struct {
	t   *Ticket
	h   *Handle
	err error
}

// Tick recomputes priorities, cancels, and fills free slots.
// Continuations run after the scheduler's own state is settled,
// and may themselves Schedule or call Done; those are folded into this tick.
func (s *Scheduler) Tick() {
	s.dirty = true
	if s.ticking {
		return
	}
	s.ticking = true
	defer func() { s.ticking = false }()
	for s.dirty {
		s.dirty = false
		for _, r := range s.pass() {
			r.t.resolve(r.h, r.err)
		}
	}
}

func (s *Scheduler) pass() []resolution {
	var out []resolution
	kept := make([]*Ticket, 0, len(s.queue))
	for _, t := range s.queue {
		p := t.priority(t.key)
		if p < 0 {
			delete(s.outstanding, t.key)
			s.cancelled.Inc(1)
			out = append(out, resolution{t: t, err: ErrCancelled})
			continue
		}
		t.value = p
		kept = append(kept, t)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].value != kept[j].value {
			return kept[i].value < kept[j].value
		}
		return kept[i].seq < kept[j].seq
	})
	n := s.maxConcurrent - s.active
	if n > len(kept) {
		n = len(kept)
	}
	if n < 0 {
		n = 0
	}
	for _, t := range kept[:n] {
		s.active++
		s.admitted.Inc(1)
		out = append(out, resolution{t: t, h: &Handle{s: s, key: t.key}})
	}
	s.queue = kept[n:]
	s.activeG.Update(int64(s.active))
	s.queuedG.Update(int64(len(s.queue)))
	return out
}

func (s *Scheduler) release(key conceptual.TileID) {
	if s.active <= 0 {
		s.violation("release with no active requests", "key", key)
		return
	}
	s.active--
	delete(s.outstanding, key)
	s.activeG.Update(int64(s.active))
	s.Tick()
}

// CancelQueued resolves every queued request with ErrCancelled.
// Admitted requests keep their slots until Done.
func (s *Scheduler) CancelQueued() int {
	queue := s.queue
	s.queue = nil
	for _, t := range queue {
		delete(s.outstanding, t.key)
	}
	s.cancelled.Inc(int64(len(queue)))
	s.queuedG.Update(0)
	for _, t := range queue {
		t.resolve(nil, ErrCancelled)
	}
	return len(queue)
}

// Close cancels the queue; later Schedules resolve cancelled immediately.
func (s *Scheduler) Close() {
	s.closed = true
	s.CancelQueued()
}

func (s *Scheduler) Active() int {
	return s.active
}

func (s *Scheduler) Queued() int {
	return len(s.queue)
}

func (s *Scheduler) MaxConcurrent() int {
	return s.maxConcurrent
}

// Outstanding reports whether key is queued or in flight.
func (s *Scheduler) Outstanding(key conceptual.TileID) bool {
	_, ok := s.outstanding[key]
	return ok
}

// Stats is a snapshot of the scheduler's counters.
type Stats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Admitted  int64 `json:"admitted"`
	Cancelled int64 `json:"cancelled"`
	Coalesced int64 `json:"coalesced"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Active:    s.active,
		Queued:    len(s.queue),
		Admitted:  s.admitted.Snapshot().Count(),
		Cancelled: s.cancelled.Snapshot().Count(),
		Coalesced: s.coalesced.Snapshot().Count(),
	}
}
