package intern

import "testing"

// fakeEntries simulates an owner array whose hash is stable per index,
// independent of insertion order — the table itself never computes hashes.
type fakeEntries struct {
	hashes []uint32
}

func (f *fakeEntries) hash(idx int32) uint32 { return f.hashes[idx] }

func TestInsertFindRoundTrip(t *testing.T) {
	f := &fakeEntries{hashes: []uint32{10, 20, 30, 40, 50, 60}}
	tbl := New(2, f.hash)
	for i := int32(0); i < 6; i++ {
		tbl.Insert(i)
	}
	if tbl.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", tbl.Len())
	}
	for i := int32(0); i < 6; i++ {
		it, ok := tbl.Find(f.hashes[i])
		if !ok {
			t.Fatalf("Find(%d) missing index %d", f.hashes[i], i)
		}
		found := false
		for {
			if it.Value() == i {
				found = true
				break
			}
			if !it.Next() {
				break
			}
		}
		if !found {
			t.Fatalf("Find(%d) never yielded index %d", f.hashes[i], i)
		}
	}
}

func TestEqualHashCollisionIteratesAll(t *testing.T) {
	// Three distinct entries sharing one hash value must all be
	// discoverable via Find+Next.
	f := &fakeEntries{hashes: []uint32{7, 7, 7}}
	tbl := New(1, f.hash)
	tbl.Insert(0)
	tbl.Insert(1)
	tbl.Insert(2)

	seen := map[int32]bool{}
	it, ok := tbl.Find(7)
	if !ok {
		t.Fatalf("Find(7) returned no match")
	}
	seen[it.Value()] = true
	for it.Next() {
		seen[it.Value()] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct candidates, got %d (%v)", len(seen), seen)
	}
}

func TestRemoveThenFindMisses(t *testing.T) {
	f := &fakeEntries{hashes: []uint32{1, 2, 3}}
	tbl := New(2, f.hash)
	tbl.Insert(0)
	tbl.Insert(1)
	tbl.Insert(2)

	tbl.Remove(1)
	if tbl.Len() != 2 {
		t.Fatalf("Len() after remove = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Find(2); ok {
		t.Fatalf("Find(2) should miss after Remove(1)")
	}
	if it, ok := tbl.Find(1); !ok || it.Value() != 0 {
		t.Fatalf("Find(1) broken after unrelated removal")
	}
	if it, ok := tbl.Find(3); !ok || it.Value() != 2 {
		t.Fatalf("Find(3) broken after unrelated removal")
	}
}

func TestGrowPreservesAllEntries(t *testing.T) {
	hashes := make([]uint32, 64)
	for i := range hashes {
		hashes[i] = uint32(i) * 2654435769
	}
	f := &fakeEntries{hashes: hashes}
	tbl := New(2, f.hash) // main size 8, should trigger multiple grows

	for i := int32(0); i < 64; i++ {
		tbl.Insert(i)
	}
	if tbl.Len() != 64 {
		t.Fatalf("Len() = %d, want 64", tbl.Len())
	}
	for i := int32(0); i < 64; i++ {
		it, ok := tbl.Find(hashes[i])
		if !ok {
			t.Fatalf("Find missing index %d after growth", i)
		}
		found := it.Value() == i
		for !found && it.Next() {
			found = it.Value() == i
		}
		if !found {
			t.Fatalf("index %d lost after growth", i)
		}
	}
}
