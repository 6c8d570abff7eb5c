package tuplearena

import (
	"testing"

	"github.com/kelpgfx/stylecache/internal/kvarena"
)

func newArena() *Arena {
	return New(kvarena.New())
}

func TestCreateCanonicalizesAndDedupesLastWins(t *testing.T) {
	a := newArena()
	id1 := a.Create([]Pair{
		{Key: 2, Value: []byte("b")},
		{Key: 1, Value: []byte("a-first")},
		{Key: 1, Value: []byte("a-second")}, // later duplicate wins
	})

	if a.Len(id1) != 2 {
		t.Fatalf("Len = %d, want 2", a.Len(id1))
	}
	k0, v0 := a.At(id1, 0)
	k1, v1 := a.At(id1, 1)
	if k0 != 1 || string(v0) != "a-second" {
		t.Fatalf("entry0 = (%d,%q), want (1,\"a-second\")", k0, v0)
	}
	if k1 != 2 || string(v1) != "b" {
		t.Fatalf("entry1 = (%d,%q), want (2,\"b\")", k1, v1)
	}
}

func TestCreateInternsIdenticalTuples(t *testing.T) {
	a := newArena()
	id1 := a.Create([]Pair{{Key: 1, Value: []byte("x")}, {Key: 2, Value: []byte("y")}})
	id2 := a.Create([]Pair{{Key: 2, Value: []byte("y")}, {Key: 1, Value: []byte("x")}})
	if id1 != id2 {
		t.Fatalf("Create returned distinct handles for equivalent tuples: %d != %d", id1, id2)
	}
	if a.Refcount(id1) != 2 {
		t.Fatalf("Refcount = %d, want 2", a.Refcount(id1))
	}
}

func TestCreateDistinguishesDifferentTuples(t *testing.T) {
	a := newArena()
	id1 := a.Create([]Pair{{Key: 1, Value: []byte("x")}})
	id2 := a.Create([]Pair{{Key: 1, Value: []byte("z")}})
	if id1 == id2 {
		t.Fatalf("Create collapsed distinct tuples")
	}
}

func TestPatchReplacesAndRemoves(t *testing.T) {
	a := newArena()
	base := a.Create([]Pair{
		{Key: 1, Value: []byte("one")},
		{Key: 2, Value: []byte("two")},
		{Key: 3, Value: []byte("three")},
	})

	patched := a.Patch(base, []PatchOp{
		{Key: 2, Value: []byte("TWO")},
		{Key: 3, Remove: true},
		{Key: 4, Value: []byte("four")},
	})

	if a.Len(patched) != 3 {
		t.Fatalf("Len(patched) = %d, want 3", a.Len(patched))
	}
	want := map[uint8]string{1: "one", 2: "TWO", 4: "four"}
	for i := 0; i < a.Len(patched); i++ {
		k, v := a.At(patched, i)
		if want[k] != string(v) {
			t.Fatalf("patched key %d = %q, want %q", k, v, want[k])
		}
	}
}

func TestReleaseToZeroInvokesOnRetire(t *testing.T) {
	a := newArena()
	var retired []int32
	a.OnRetire(func(idx int32) { retired = append(retired, idx) })

	id := a.Create([]Pair{{Key: 1, Value: []byte("v")}})
	a.Release(id)
	a.Flush()

	if len(retired) != 1 || retired[0] != id {
		t.Fatalf("onRetire called with %v, want [%d]", retired, id)
	}
}
