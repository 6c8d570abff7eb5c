package kvarena

import "testing"

func TestInternDeduplicatesIdenticalPairs(t *testing.T) {
	a := New()
	h1 := a.Intern(3, []byte("red"))
	h2 := a.Intern(3, []byte("red"))
	if h1 != h2 {
		t.Fatalf("Intern returned distinct handles for identical (key, value): %d != %d", h1, h2)
	}
	if a.Refcount(h1) != 2 {
		t.Fatalf("Refcount = %d, want 2", a.Refcount(h1))
	}
}

func TestInternDistinguishesByKey(t *testing.T) {
	a := New()
	h1 := a.Intern(1, []byte("x"))
	h2 := a.Intern(2, []byte("x"))
	if h1 == h2 {
		t.Fatalf("Intern collapsed distinct keys with equal value bytes")
	}
}

func TestInlineVsBlobRoundTrip(t *testing.T) {
	a := New()
	small := a.Intern(1, []byte("abcd"))
	large := a.Intern(1, []byte("a long value exceeding eight bytes"))

	if got := string(a.Bytes(small)); got != "abcd" {
		t.Fatalf("inline bytes = %q, want %q", got, "abcd")
	}
	if got := string(a.Bytes(large)); got != "a long value exceeding eight bytes" {
		t.Fatalf("blob bytes = %q", got)
	}
}

func TestReleaseToZeroThenReacquireReusesHandleViaDelay(t *testing.T) {
	a := New()
	h := a.Intern(5, []byte("v"))
	a.Release(h) // refcount -> 0, queued for delayed reclaim

	h2 := a.Intern(5, []byte("v"))
	if h2 != h {
		t.Fatalf("reacquire within delay window got new handle %d, want %d", h2, h)
	}
	if a.Refcount(h2) != 1 {
		t.Fatalf("Refcount after reacquire = %d, want 1", a.Refcount(h2))
	}
}

func TestReleasePastDelayWindowReclaimsSlot(t *testing.T) {
	a := New()
	h := a.Intern(9, []byte("first"))
	a.Release(h)

	// Push delayQueueCapacity more zero-refcount entries through so the
	// original handle's slot is evicted from the delay queue and
	// physically reclaimed.
	for i := 0; i < delayQueueCapacity+1; i++ {
		tmp := a.Intern(9, []byte{byte(i), byte(i >> 8)})
		a.Release(tmp)
	}

	h2 := a.Intern(9, []byte("first"))
	if a.Refcount(h2) != 1 {
		t.Fatalf("Refcount after full reclaim + reintern = %d, want 1", a.Refcount(h2))
	}
}

func TestLenAccountsForFreedSlots(t *testing.T) {
	a := New()
	before := a.Len()
	h := a.Intern(1, []byte("z"))
	if a.Len() != before+1 {
		t.Fatalf("Len() = %d after one Intern, want %d", a.Len(), before+1)
	}
	a.Release(h)
	a.Flush()
	if a.Len() != before {
		t.Fatalf("Len() = %d after Flush of lone released entry, want %d", a.Len(), before)
	}
}
