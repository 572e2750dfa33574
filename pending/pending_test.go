package pending

import (
	"errors"
	"math/rand"
	"testing"
)

func TestRegistry_Pairs(t *testing.T) {
	r := NewRegistry()
	if !r.IsZero("main", 1) {
		t.Fatal("expected zero before any registration")
	}
	r.Register("main", 1)
	r.Register("main", 1)
	r.Register("mini", 1)
	if r.IsZero("main", 1) || r.Count("main", 1) != 2 {
		t.Fatalf("expected 2, got %d", r.Count("main", 1))
	}
	if err := r.Deregister("main", 1); err != nil {
		t.Fatal(err)
	}
	if r.IsZero("main", 1) {
		t.Fatal("expected one outstanding")
	}
	if err := r.Deregister("main", 1); err != nil {
		t.Fatal(err)
	}
	if !r.IsZero("main", 1) {
		t.Error("expected zero after matching deregistrations")
	}
	if r.IsZero("mini", 1) {
		t.Error("expected viewports to be counted separately")
	}
	if r.Len() != 1 {
		t.Errorf("expected drained keys to be dropped, got %d keys", r.Len())
	}
}

func TestRegistry_DeregisterAbsent(t *testing.T) {
	r := NewRegistry()
	if err := r.Deregister("main", 7); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if r.Count("main", 7) != 0 {
		t.Error("expected count floored at zero")
	}
}

func TestRegistry_ZeroIffBalanced(t *testing.T) {
	r := NewRegistry()
	rng := rand.New(rand.NewSource(42))
	registered, deregistered := 0, 0
	for i := 0; i < 1000; i++ {
		if registered == deregistered || rng.Intn(2) == 0 {
			r.Register("v", 3)
			registered++
		} else {
			if err := r.Deregister("v", 3); err != nil {
				t.Fatal(err)
			}
			deregistered++
		}
		if r.IsZero("v", 3) != (registered == deregistered) {
			t.Fatalf("step %d: expected zero=%v with %d/%d", i, registered == deregistered, registered, deregistered)
		}
	}
}
