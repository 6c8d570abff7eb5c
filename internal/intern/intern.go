// Package intern implements the two-tier open-addressed index used to
// intern both KV entries and attribute tuples.
//
// The table never owns or copies the values it indexes: callers hand it a
// HashFunc that maps an external owner index to its 32-bit hash, and a
// plain int32 owner index is all the table ever stores. This mirrors the
// original C table's split between "index" (the array being interned) and
// "intern_cache" (the lookup structure over it) in
// original_source/intern_cache.h.
//
// Layout: a main slot array of size 2^(bits+1) gives O(1) lookup in the
// common no-collision case; a sorted-by-hash collision array of capacity
// 2^bits absorbs the rest, with binary search giving O(log n) equal-hash
// walks and — unlike a chained hash list — a stable, reorganization-proof
// iteration order. See original_source/intern_cache.h for the reference
// algorithm this is a direct Go port of.
package intern

const invalid = -1

// HashFunc returns the 32-bit hash of the entry identified by idx. The
// table calls it on every probe; implementations should be cheap (the KV
// and tuple arenas precompute and cache the hash on the entry itself).
type HashFunc func(idx int32) uint32

// Table is an open-addressed intern index over an externally-owned array.
type Table struct {
	hash HashFunc

	shift uint // mainslot = hash >> shift

	main     []int32 // size 2^(bits+1), invalid where empty
	collide  []int32 // sorted by hash(collide[i]), ascending
	count    int     // number of interned entries (main + collide)

	onResize func(newBits uint)
}

// OnResize registers a callback invoked whenever the table doubles in
// size, passing the new bit size. Useful for logging the event, which is
// rare enough to be worth a Debug line but not worth a hot-path branch.
func (t *Table) OnResize(fn func(newBits uint)) { t.onResize = fn }

// New constructs a table with 2^(bits+1) main slots and 2^bits collision
// capacity. hash must remain valid for the table's lifetime.
func New(bits uint, hash HashFunc) *Table {
	if hash == nil {
		panic("intern: hash func must not be nil")
	}
	t := &Table{hash: hash}
	t.reset(bits)
	return t
}

func (t *Table) reset(bits uint) {
	mainSize := 1 << (bits + 1)
	t.shift = 32 - bits - 1
	t.main = make([]int32, mainSize)
	for i := range t.main {
		t.main[i] = invalid
	}
	t.collide = make([]int32, 0, 1<<bits)
	t.count = 0
}

func (t *Table) mainslot(h uint32) int {
	return int(h >> t.shift)
}

// lowerBound returns the index of the first collision-array entry whose
// hash is >= h, within [begin,end).
func (t *Table) lowerBound(h uint32, begin, end int) int {
	for begin < end {
		mid := (begin + end) / 2
		midH := t.hash(t.collide[mid])
		if h <= midH {
			end = mid
		} else {
			begin = mid + 1
		}
	}
	return begin
}

// firstEqual returns the index of the first collision-array entry with
// hash == h, or -1 if none exists.
func (t *Table) firstEqual(h uint32) int {
	i := t.lowerBound(h, 0, len(t.collide))
	if i < len(t.collide) && t.hash(t.collide[i]) == h {
		return i
	}
	return -1
}

// Iterator walks every candidate index sharing a requested hash. Identity
// is confirmed by the caller via byte-level comparison; a matching hash is
// only a candidate.
type Iterator struct {
	t        *Table
	fromMain bool
	result   int32
	collide  int // -1 while iterating the main slot; >=0 once in the array
	h        uint32
	done     bool
}

// Find begins a lookup for hash h. Returns ok=false if no candidate exists.
func (t *Table) Find(h uint32) (Iterator, bool) {
	it := Iterator{t: t, h: h, collide: -1}
	slot := t.mainslot(h)
	v := t.main[slot]
	if v != invalid && t.hash(v) == h {
		it.result = v
		it.fromMain = true
		return it, true
	}
	ci := t.firstEqual(h)
	if ci < 0 {
		return it, false
	}
	it.result = t.collide[ci]
	it.collide = ci
	it.fromMain = false
	return it, true
}

// Value returns the current candidate index.
func (it *Iterator) Value() int32 { return it.result }

// Next advances to the next candidate with the same hash. Returns false
// when exhausted.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	t := it.t
	if it.fromMain {
		ci := t.firstEqual(it.h)
		if ci < 0 {
			it.done = true
			return false
		}
		it.result = t.collide[ci]
		it.collide = ci
		it.fromMain = false
		return true
	}
	next := it.collide + 1
	if next >= len(t.collide) || t.hash(t.collide[next]) != it.h {
		it.done = true
		return false
	}
	it.collide = next
	it.result = t.collide[next]
	return true
}

// insertAt places index into the collision array at position p, shifting
// later entries right.
func (t *Table) insertAt(index int32, p int) {
	t.collide = append(t.collide, 0)
	copy(t.collide[p+1:], t.collide[p:len(t.collide)-1])
	t.collide[p] = index
}

// Insert adds index (whose hash is hash(index)) into the table. Resizes
// (doubling) first if the interned count has reached half the main table
// size, i.e. the collision array's capacity.
func (t *Table) Insert(index int32) {
	if t.count >= len(t.main)/2 {
		t.growAndReinsertAll()
	}
	t.insertOne(index)
	t.count++
}

func (t *Table) insertOne(index int32) {
	h := t.hash(index)
	slot := t.mainslot(h)
	occupant := t.main[slot]
	if occupant == invalid {
		t.main[slot] = index
		return
	}
	// Bump the existing occupant into the collision array at the
	// lower-bound position for its hash; ties preserve insertion order by
	// inserting after any existing equal-hash run.
	occH := t.hash(occupant)
	p := t.lowerBound(occH, 0, len(t.collide))
	for p < len(t.collide) && t.hash(t.collide[p]) == occH {
		p++
	}
	t.insertAt(occupant, p)
	t.main[slot] = index
}

func (t *Table) growAndReinsertAll() {
	bits := 0
	for 1<<bits < len(t.main) {
		bits++
	}
	old := t.allIndices()
	t.reset(uint(bits)) // doubles: bits is log2 of the old main size, so the new main size is 2^(bits+1)
	for _, idx := range old {
		t.insertOne(idx)
	}
	t.count = len(old)
	if t.onResize != nil {
		t.onResize(uint(bits))
	}
}

func (t *Table) allIndices() []int32 {
	out := make([]int32, 0, t.count)
	for _, v := range t.main {
		if v != invalid {
			out = append(out, v)
		}
	}
	out = append(out, t.collide...)
	return out
}

// Remove deletes index from the table. index must have been previously
// Insert-ed and not yet removed.
func (t *Table) Remove(index int32) {
	h := t.hash(index)
	slot := t.mainslot(h)
	if t.main[slot] == index {
		// Repair the main slot from the head of the equal-hash collision
		// run, if any.
		ci := t.firstEqual(h)
		if ci < 0 {
			t.main[slot] = invalid
		} else {
			t.main[slot] = t.collide[ci]
			t.removeCollideAt(ci)
		}
		t.count--
		return
	}
	ci := t.firstEqual(h)
	for ci >= 0 && ci < len(t.collide) && t.hash(t.collide[ci]) == h {
		if t.collide[ci] == index {
			t.removeCollideAt(ci)
			t.count--
			return
		}
		ci++
	}
	panic("intern: remove of index not present")
}

func (t *Table) removeCollideAt(i int) {
	copy(t.collide[i:], t.collide[i+1:])
	t.collide = t.collide[:len(t.collide)-1]
}

// Len returns the number of interned entries.
func (t *Table) Len() int { return t.count }
