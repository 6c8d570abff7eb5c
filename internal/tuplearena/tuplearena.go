// Package tuplearena implements the interned attribute-tuple arena: a
// tuple is a canonical, key-sorted array of KV handles (see
// internal/kvarena) with "later duplicate wins" semantics on
// construction. Identical canonical tuples — same keys, same values, same
// order — share one interned handle, refcounted like KV entries.
//
// Grounded on original_source/attrib.c's tuple_new/tuple_delete,
// attrib_create (the insertion-sort canonicalization loop) and
// array_hash from hash.h.
package tuplearena

import (
	"sort"

	"github.com/kelpgfx/stylecache/internal/delayqueue"
	"github.com/kelpgfx/stylecache/internal/intern"
	"github.com/kelpgfx/stylecache/internal/kvarena"
)

const knuthHash = 2654435769

const delayQueueCapacity = 4096

// Pair is one key/value input to Create, in caller-supplied order. When
// the same key appears more than once, the last occurrence wins.
type Pair struct {
	Key   uint8
	Value []byte
}

// PatchOp describes one edit applied by Patch.
type PatchOp struct {
	Key    uint8
	Remove bool   // if true, drop Key from the result regardless of Value
	Value  []byte // ignored when Remove is true
}

type tuple struct {
	handles  []int32 // kv handles, sorted ascending by kvarena key
	hash     uint32
	refcount uint32
}

// Arena is an interned table of canonical attribute tuples.
type Arena struct {
	kv       *kvarena.Arena
	tuples   []tuple
	free     []int32
	delay    *delayqueue.Queue
	table    *intern.Table
	onRetire func(idx int32)
	onIntern func(created bool)
	onEvict  func()
}

// OnInternTableResize registers a callback invoked whenever the backing
// intern table doubles in size.
func (a *Arena) OnInternTableResize(fn func(newBits uint)) { a.table.OnResize(fn) }

// OnIntern registers a callback invoked on every Create call with
// created=true for a freshly-allocated tuple and created=false for a
// reused one.
func (a *Arena) OnIntern(fn func(created bool)) { a.onIntern = fn }

// OnEvict registers a callback invoked whenever the delay queue is full
// and must force a physical reclaim to make room for a newly-released
// tuple.
func (a *Arena) OnEvict(fn func()) { a.onEvict = fn }

// New constructs an arena storing its KV entries in kv, with the default
// delay-queue capacity.
func New(kv *kvarena.Arena) *Arena {
	return NewWithCapacity(kv, delayQueueCapacity)
}

// NewWithCapacity constructs an arena whose delayed-release queue holds
// up to capacity entries before forcing a physical reclaim.
func NewWithCapacity(kv *kvarena.Arena, capacity int) *Arena {
	a := &Arena{
		kv:    kv,
		delay: delayqueue.New(capacity),
	}
	a.table = intern.New(8, a.hashOf)
	return a
}

// OnRetire registers a callback invoked with a tuple's handle immediately
// before it is physically reclaimed, so that dependent caches (notably
// internal/inheritcache) can drop memoized state keyed on it.
func (a *Arena) OnRetire(fn func(idx int32)) { a.onRetire = fn }

func (a *Arena) hashOf(idx int32) uint32 { return a.tuples[idx].hash }

// canonicalize sorts pairs by key, keeping the last occurrence of each
// duplicate key, and returns the result in ascending key order.
func canonicalize(pairs []Pair) []Pair {
	last := make(map[uint8]Pair, len(pairs))
	order := make([]uint8, 0, len(pairs))
	for _, p := range pairs {
		if _, seen := last[p.Key]; !seen {
			order = append(order, p.Key)
		}
		last[p.Key] = p
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Pair, len(order))
	for i, k := range order {
		out[i] = last[k]
	}
	return out
}

// arrayHash salts with n, rolls each handle in from the high index down
// to the low index, multiplies once by the Knuth constant, and remaps
// the reserved-empty-slot value 0 to 1, per the original's hash.h
// array_hash (computed directly over the kv-handle array, not over the
// handles' own hashes).
func arrayHash(handles []int32) uint32 {
	h := uint32(len(handles))
	for i := len(handles) - 1; i >= 0; i-- {
		v := uint32(handles[i])
		h ^= (h << 29) + (h >> 2) + v
	}
	h *= knuthHash
	if h == 0 {
		return 1
	}
	return h
}

func (a *Arena) handlesEqual(idx int32, handles []int32) bool {
	t := &a.tuples[idx]
	if len(t.handles) != len(handles) {
		return false
	}
	for i := range handles {
		if t.handles[i] != handles[i] {
			return false
		}
	}
	return true
}

func (a *Arena) alloc() int32 {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		return idx
	}
	a.tuples = append(a.tuples, tuple{})
	return int32(len(a.tuples) - 1)
}

// internHandles finds-or-creates the tuple holding exactly these
// (already-interned) kv handles in order, consuming one ref on each
// handle on behalf of the new tuple. If an identical tuple already
// exists, the freshly-acquired refs are released back (the existing
// tuple already owns its own) and the existing handle is addref'd and
// returned.
func (a *Arena) internHandles(handles []int32) int32 {
	h := arrayHash(handles)

	if it, ok := a.table.Find(h); ok {
		for {
			if a.handlesEqual(it.Value(), handles) {
				idx := it.Value()
				for _, kvh := range handles {
					a.kv.Release(kvh)
				}
				a.AddRef(idx)
				if a.onIntern != nil {
					a.onIntern(false)
				}
				return idx
			}
			if !it.Next() {
				break
			}
		}
	}

	idx := a.alloc()
	a.tuples[idx] = tuple{
		handles:  handles,
		hash:     h,
		refcount: 1,
	}
	a.table.Insert(idx)
	if a.onIntern != nil {
		a.onIntern(true)
	}
	return idx
}

// Create canonicalizes pairs and returns the interned handle of the
// resulting tuple, incrementing its refcount.
func (a *Arena) Create(pairs []Pair) int32 {
	canon := canonicalize(pairs)
	handles := make([]int32, len(canon))
	for i, p := range canon {
		handles[i] = a.kv.Intern(p.Key, p.Value)
	}
	return a.internHandles(handles)
}

// Patch applies ops (in order, later ops on the same key winning) to
// base's tuple and returns the interned handle of the resulting tuple.
// base is unaffected; the caller is responsible for releasing it if it
// is being replaced.
func (a *Arena) Patch(base int32, ops []PatchOp) int32 {
	t := &a.tuples[base]
	merged := make(map[uint8][]byte, len(t.handles)+len(ops))
	order := make([]uint8, 0, len(t.handles)+len(ops))
	removed := make(map[uint8]bool, len(ops))

	for _, kvh := range t.handles {
		k := a.kv.Key(kvh)
		merged[k] = a.kv.Bytes(kvh)
		order = append(order, k)
	}
	for _, op := range ops {
		if op.Remove {
			removed[op.Key] = true
			delete(merged, op.Key)
			continue
		}
		delete(removed, op.Key)
		if _, existed := merged[op.Key]; !existed {
			order = append(order, op.Key)
		}
		merged[op.Key] = op.Value
	}

	pairs := make([]Pair, 0, len(order))
	seen := make(map[uint8]bool, len(order))
	for _, k := range order {
		if seen[k] || removed[k] {
			continue
		}
		seen[k] = true
		if v, ok := merged[k]; ok {
			pairs = append(pairs, Pair{Key: k, Value: v})
		}
	}
	return a.Create(pairs)
}

// Inherit composes child over parent: every key present in child wins
// outright; every key present only in parent is carried over unless mask
// is non-nil and mask(key) reports the key should be dropped. The result
// is a freshly interned canonical tuple; child and parent are unaffected.
//
// Grounded on original_source/attrib.c's attrib_inherit merge loop.
func (a *Arena) Inherit(child, parent int32, mask func(key uint8) bool) int32 {
	ct := &a.tuples[child]
	pt := &a.tuples[parent]

	pairs := make([]Pair, 0, len(ct.handles)+len(pt.handles))
	for _, h := range ct.handles {
		pairs = append(pairs, Pair{Key: a.kv.Key(h), Value: a.kv.Bytes(h)})
	}
	childKeys := make(map[uint8]bool, len(ct.handles))
	for _, h := range ct.handles {
		childKeys[a.kv.Key(h)] = true
	}
	for _, h := range pt.handles {
		k := a.kv.Key(h)
		if childKeys[k] {
			continue
		}
		if mask != nil && mask(k) {
			continue
		}
		pairs = append(pairs, Pair{Key: k, Value: a.kv.Bytes(h)})
	}
	return a.Create(pairs)
}

// AddRef increments idx's refcount.
func (a *Arena) AddRef(idx int32) {
	a.tuples[idx].refcount++
}

// Release decrements idx's refcount, deferring physical reclamation
// through the bounded delay queue exactly like internal/kvarena.
func (a *Arena) Release(idx int32) {
	t := &a.tuples[idx]
	if t.refcount == 0 {
		panic("tuplearena: release of tuple with zero refcount")
	}
	t.refcount--
	if t.refcount != 0 {
		return
	}
	if evicted, ok := a.delay.Push(idx); ok {
		if a.onEvict != nil {
			a.onEvict()
		}
		a.reclaim(evicted)
	}
}

func (a *Arena) reclaim(idx int32) {
	t := &a.tuples[idx]
	if t.refcount != 0 {
		return
	}
	if a.onRetire != nil {
		a.onRetire(idx)
	}
	a.table.Remove(idx)
	for _, kvh := range t.handles {
		a.kv.Release(kvh)
	}
	t.handles = nil
	a.free = append(a.free, idx)
}

// Flush drains the delay queue, physically reclaiming every still-zero
// tuple immediately.
func (a *Arena) Flush() {
	a.delay.Drain(a.reclaim)
}

// Len returns the number of entries in idx's tuple.
func (a *Arena) Len(idx int32) int { return len(a.tuples[idx].handles) }

// At returns the key and value bytes of the i-th entry of idx's tuple,
// in ascending key order.
func (a *Arena) At(idx int32, i int) (uint8, []byte) {
	kvh := a.tuples[idx].handles[i]
	return a.kv.Key(kvh), a.kv.Bytes(kvh)
}

// Hash returns idx's cached array hash.
func (a *Arena) Hash(idx int32) uint32 { return a.tuples[idx].hash }

// Refcount returns idx's current refcount.
func (a *Arena) Refcount(idx int32) uint32 { return a.tuples[idx].refcount }

// Count returns the number of tuple slots currently allocated (live or
// queued in the delay queue).
func (a *Arena) Count() int { return len(a.tuples) - len(a.free) }
