package collection

import (
	"testing"

	"fluent/tuple"
)

func TestScratchEmptyAfterTick(t *testing.T) {
	s := NewScratch("s", intSchema("x"))
	tup := tuple.Tuple{int64(1)}
	s.Merge(tup, tuple.Hash(tup), 0)
	if len(s.Get()) != 1 {
		t.Fatalf("expected merged tuple visible before tick")
	}
	s.Tick()
	if len(s.Get()) != 0 {
		t.Fatalf("scratch must be empty after Tick")
	}
}
