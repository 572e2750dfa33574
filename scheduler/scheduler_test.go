package scheduler

import (
	"errors"
	"github.com/rotblauer/tilestream/conceptual"
	"testing"
)

func constant(p float64) PriorityFunc {
	return func(conceptual.TileID) float64 { return p }
}

func TestSchedule_Coalesces(t *testing.T) {
	s := New("test", 6, WithStrictInvariants(true))
	a := s.Schedule("tile/1", constant(1))
	b := s.Schedule("tile/1", constant(1))
	if a != b {
		t.Fatal("expected the same ticket for the same key")
	}
	fetches := 0
	a.Then(func(h *Handle, err error) {
		if err != nil {
			t.Fatal(err)
		}
		fetches++
	})
	s.Tick()
	if fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetches)
	}
	ha, _ := a.Result()
	hb, _ := b.Result()
	if ha == nil || ha != hb {
		t.Fatalf("expected both tickets to hold the same handle, got %v %v", ha, hb)
	}
	if got := s.Stats().Coalesced; got != 1 {
		t.Errorf("expected 1 coalesced, got %d", got)
	}
	ha.Done()
	if s.Outstanding("tile/1") {
		t.Error("expected key released after Done")
	}
	if c := s.Schedule("tile/1", constant(1)); c == a {
		t.Error("expected a fresh ticket after Done")
	}
}

func TestSchedule_Deferred(t *testing.T) {
	s := New("test", 1)
	tk := s.Schedule("a", constant(0))
	select {
	case <-tk.Resolved():
		t.Fatal("expected no admission before Tick")
	default:
	}
	s.Tick()
	select {
	case <-tk.Resolved():
	default:
		t.Fatal("expected admission after Tick")
	}
}

func TestTick_MaxConcurrent(t *testing.T) {
	s := New("test", 2, WithStrictInvariants(true))
	var handles []*Handle
	keys := []conceptual.TileID{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		s.Schedule(k, constant(1)).Then(func(h *Handle, err error) {
			if err != nil {
				t.Fatal(err)
			}
			handles = append(handles, h)
			if s.Active() > 2 {
				t.Fatalf("expected at most 2 active, got %d", s.Active())
			}
		})
	}
	s.Tick()
	if len(handles) != 2 || s.Active() != 2 || s.Queued() != 3 {
		t.Fatalf("expected 2 admitted 3 queued, got %d admitted %d queued", len(handles), s.Queued())
	}
	// Done re-ticks immediately.
	handles[0].Done()
	if len(handles) != 3 || s.Active() != 2 {
		t.Fatalf("expected freed slot to be taken, got %d admitted %d active", len(handles), s.Active())
	}
	for len(s.queue) > 0 || s.Active() > 0 {
		for _, h := range handles {
			if !h.done {
				h.Done()
				break
			}
		}
	}
	if len(handles) != len(keys) {
		t.Errorf("expected all %d admitted, got %d", len(keys), len(handles))
	}
}

func TestTick_OrderByPriorityThenInsertion(t *testing.T) {
	s := New("test", 1, WithStrictInvariants(true))
	var order []conceptual.TileID
	record := func(h *Handle, err error) {
		if err == nil {
			order = append(order, h.Key())
		}
	}
	s.Schedule("late", constant(5)).Then(record)
	s.Schedule("first-tie", constant(2)).Then(record)
	s.Schedule("second-tie", constant(2)).Then(record)
	s.Schedule("urgent", constant(0)).Then(record)
	s.Tick()
	for len(order) < 4 {
		h, _ := s.outstanding[order[len(order)-1]].Result()
		h.Done()
	}
	expected := []conceptual.TileID{"urgent", "first-tie", "second-tie", "late"}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, order)
		}
	}
}

func TestTick_NegativePriorityCancels(t *testing.T) {
	s := New("test", 1, WithStrictInvariants(true))
	blocker := s.Schedule("blocker", constant(0))
	p := 1.0
	tk := s.Schedule("stale", func(conceptual.TileID) float64 { return p })
	s.Tick()
	if _, err := tk.Result(); err != nil || s.Queued() != 1 {
		t.Fatalf("expected stale request queued, got err=%v queued=%d", err, s.Queued())
	}

	p = -1
	s.Tick()
	h, err := tk.Result()
	if !errors.Is(err, ErrCancelled) || h != nil {
		t.Fatalf("expected cancelled, got %v %v", h, err)
	}
	if s.Active() != 1 {
		t.Errorf("expected cancelled request not counted, got %d active", s.Active())
	}
	if got := s.Stats().Cancelled; got != 1 {
		t.Errorf("expected 1 cancelled, got %d", got)
	}

	bh, _ := blocker.Result()
	bh.Done()
	if s.Active() != 0 {
		t.Errorf("expected 0 active, got %d", s.Active())
	}
}

func TestHandle_DoneInsideContinuation(t *testing.T) {
	s := New("test", 1, WithStrictInvariants(true))
	admitted := 0
	for _, k := range []conceptual.TileID{"a", "b", "c"} {
		s.Schedule(k, constant(1)).Then(func(h *Handle, err error) {
			admitted++
			h.Done()
		})
	}
	s.Tick()
	if admitted != 3 {
		t.Errorf("expected continuations to drain the queue in one tick, got %d", admitted)
	}
	if s.Active() != 0 {
		t.Errorf("expected 0 active, got %d", s.Active())
	}
}

func TestHandle_DoneTwicePanicsWhenStrict(t *testing.T) {
	s := New("test", 1, WithStrictInvariants(true))
	tk := s.Schedule("a", constant(1))
	s.Tick()
	h, _ := tk.Result()
	h.Done()
	defer func() {
		if recover() == nil {
			t.Error("expected panic on second Done")
		}
	}()
	h.Done()
}

func TestClose(t *testing.T) {
	s := New("test", 1)
	a := s.Schedule("a", constant(1))
	b := s.Schedule("b", constant(1))
	s.Tick()
	s.Close()
	if _, err := b.Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected queued request cancelled on close, got %v", err)
	}
	if h, err := a.Result(); err != nil || h == nil {
		t.Errorf("expected admitted request to keep its handle, got %v %v", h, err)
	}
	if _, err := s.Schedule("c", constant(1)).Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected schedule after close to cancel, got %v", err)
	}
}
