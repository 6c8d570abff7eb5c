package inheritcache

import "testing"

func TestSetThenFetchHits(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 99)
	result, ok := c.Fetch(1, 2, false)
	if !ok || result != 99 {
		t.Fatalf("Fetch(1,2,false) = (%d,%v), want (99,true)", result, ok)
	}
}

func TestWithMaskIsDistinctFromWithoutMask(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 10)
	c.Set(1, 2, true, 20)

	r1, ok1 := c.Fetch(1, 2, false)
	r2, ok2 := c.Fetch(1, 2, true)
	if !ok1 || r1 != 10 {
		t.Fatalf("Fetch(1,2,false) = (%d,%v), want (10,true)", r1, ok1)
	}
	if !ok2 || r2 != 20 {
		t.Fatalf("Fetch(1,2,true) = (%d,%v), want (20,true)", r2, ok2)
	}
}

func TestRetireChildInvalidatesEntry(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 99)
	c.Retire(1)
	if _, ok := c.Fetch(1, 2, false); ok {
		t.Fatalf("Fetch hit after retiring child operand")
	}
}

func TestRetireParentInvalidatesEntry(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 99)
	c.Retire(2)
	if _, ok := c.Fetch(1, 2, false); ok {
		t.Fatalf("Fetch hit after retiring parent operand")
	}
}

func TestRetireResultInvalidatesEntry(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 99)
	c.Retire(99)
	if _, ok := c.Fetch(1, 2, false); ok {
		t.Fatalf("Fetch hit after retiring memoized result")
	}
}

func TestUnrelatedRetireLeavesEntryIntact(t *testing.T) {
	c := New()
	c.Set(1, 2, false, 99)
	c.Retire(3)
	if _, ok := c.Fetch(1, 2, false); !ok {
		t.Fatalf("Fetch missed after unrelated id retired")
	}
}
