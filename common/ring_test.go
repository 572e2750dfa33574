package common

import (
	"reflect"
	"testing"
)

func TestRingBuffer_Overwrites(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if _, ok := rb.Last(); ok {
		t.Fatal("expected empty buffer")
	}
	for i := 1; i <= 4; i++ {
		rb.Add(i)
	}
	if got := rb.Values(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Errorf("expected [2 3 4], got %v", got)
	}
	if last, _ := rb.Last(); last != 4 {
		t.Errorf("expected 4, got %d", last)
	}
	rb.Reset()
	if rb.Len() != 0 {
		t.Errorf("expected 0, got %d", rb.Len())
	}
}
