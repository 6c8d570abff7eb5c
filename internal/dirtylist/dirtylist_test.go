package dirtylist

import (
	"sort"
	"testing"
)

func TestAddGetReturnsDependents(t *testing.T) {
	l := New()
	l.Add(1, 10)
	l.Add(1, 11)
	l.Add(1, 12)

	got := l.Get(1, nil)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []int32{10, 11, 12}
	if len(got) != len(want) {
		t.Fatalf("Get(1) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Get(1) = %v, want %v", got, want)
		}
	}
}

func TestClearTargetInvalidatesRecordedEdge(t *testing.T) {
	l := New()
	l.Add(1, 10)
	l.Add(1, 11)

	// 11 is destroyed/rebuilt: its version bumps, so the edge 1->11
	// recorded before this point must no longer surface.
	l.Clear(11)

	got := l.Get(1, nil)
	if len(got) != 1 || got[0] != 10 {
		t.Fatalf("Get(1) after Clear(11) = %v, want [10]", got)
	}
}

func TestClearOwnerEmptiesChain(t *testing.T) {
	l := New()
	l.Add(1, 10)
	l.Add(1, 11)
	l.Clear(1)

	got := l.Get(1, nil)
	if len(got) != 0 {
		t.Fatalf("Get(1) after Clear(1) = %v, want empty", got)
	}
}

func TestSlotsAreRecycled(t *testing.T) {
	l := New()
	for i := int32(0); i < 100; i++ {
		l.Add(1, i)
	}
	l.Clear(1)
	before := len(l.slots)
	for i := int32(0); i < 100; i++ {
		l.Add(2, i)
	}
	if len(l.slots) > before {
		t.Fatalf("expected freelist reuse, slots grew from %d to %d", before, len(l.slots))
	}
}

func TestGetAfterAddToMultipleOwnersIsIndependent(t *testing.T) {
	l := New()
	l.Add(1, 5)
	l.Add(2, 5)
	l.Clear(1)

	got2 := l.Get(2, nil)
	if len(got2) != 1 || got2[0] != 5 {
		t.Fatalf("Get(2) = %v, want [5] (unaffected by Clear(1))", got2)
	}
}
