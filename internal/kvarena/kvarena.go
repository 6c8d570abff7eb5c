// Package kvarena implements the interned key/value entry arena described
// in the style cache's data model: every (attribute key, value bytes) pair
// used anywhere in the cache is stored exactly once, refcounted, and
// addressed by a small int32 handle instead of a pointer.
//
// Values of 8 bytes or less are embedded directly in the entry record;
// larger values are held as a separate heap-allocated blob. Interning is
// delegated to internal/intern, keyed on a Knuth-multiplicative hash of
// the (key, bytes) pair — the same mixing constant the original C
// implementation uses in hash.h's kv_hash.
//
// Release does not free immediately: a bounded internal/delayqueue defers
// physical reclamation so a release-then-reacquire of the same value
// within a short window never touches the intern table.
//
// Grounded on original_source/attrib.c's attrib_kv / arena_create /
// arena_release / attrib_entryid, and on the entry bit-packing convention
// shown in arena-cache's pkg/cache.go.
package kvarena

import (
	"github.com/kelpgfx/stylecache/internal/delayqueue"
	"github.com/kelpgfx/stylecache/internal/intern"
)

// knuthHash is the multiplicative mixing constant used throughout the
// style cache's hashing (original_source/hash.h: KNUTH_HASH).
const knuthHash = 2654435769

// delayQueueCapacity bounds how many zero-refcount entries may sit
// released-but-not-yet-reclaimed at once.
const delayQueueCapacity = 4096

const inlineCap = 8

// entry is the packed KV record:
//
//	bit 63     blob flag (1 = value lives in blob, 0 = inline)
//	bits 56-62 attribute key id (0-127)
//	bits 32-55 refcount (24 bits)
//	bits 0-31  cached hash of (key, value)
type entry struct {
	packed uint64
	length uint8 // value length; only meaningful while live
	inline [inlineCap]byte
	blob   []byte
}

const (
	blobBit        = uint64(1) << 63
	keyShift       = 56
	keyMask        = 0x7F
	refcountShift  = 32
	refcountMask   = 0xFFFFFF
	maxRefcount    = refcountMask
	hashMask       = 0xFFFFFFFF
)

func (e *entry) isBlob() bool    { return e.packed&blobBit != 0 }
func (e *entry) key() uint8      { return uint8((e.packed >> keyShift) & keyMask) }
func (e *entry) refcount() uint32 { return uint32((e.packed >> refcountShift) & refcountMask) }
func (e *entry) hash() uint32    { return uint32(e.packed & hashMask) }

func (e *entry) setHash(h uint32) {
	e.packed = (e.packed &^ uint64(hashMask)) | uint64(h)
}

func (e *entry) setKey(k uint8) {
	e.packed = (e.packed &^ (uint64(keyMask) << keyShift)) | (uint64(k&keyMask) << keyShift)
}

func (e *entry) setBlobFlag(b bool) {
	if b {
		e.packed |= blobBit
	} else {
		e.packed &^= blobBit
	}
}

func (e *entry) setRefcount(rc uint32) {
	if rc > maxRefcount {
		panic("kvarena: refcount overflow")
	}
	e.packed = (e.packed &^ (uint64(refcountMask) << refcountShift)) | (uint64(rc) << refcountShift)
}

func (e *entry) bytes() []byte {
	if e.isBlob() {
		return e.blob
	}
	return e.inline[:e.length]
}

// Arena is an interned table of (key, value) KV entries addressed by
// int32 handle.
type Arena struct {
	entries  []entry
	free     []int32 // reclaimed slot indices available for reuse
	delay    *delayqueue.Queue
	table    *intern.Table
	onIntern func(created bool)
	onEvict  func()
}

// New constructs an empty arena with the default delay-queue capacity.
func New() *Arena {
	return NewWithCapacity(delayQueueCapacity)
}

// NewWithCapacity constructs an empty arena whose delayed-release queue
// holds up to capacity entries before forcing a physical reclaim.
func NewWithCapacity(capacity int) *Arena {
	a := &Arena{
		delay: delayqueue.New(capacity),
	}
	a.table = intern.New(8, a.hashOf)
	return a
}

func (a *Arena) hashOf(idx int32) uint32 {
	return a.entries[idx].hash()
}

// kvHash seeds with key XOR length, rolls each byte in from the high
// index down to the low index, then multiplies once by the Knuth
// constant, per the original's attrib.c hash function.
func kvHash(key uint8, value []byte) uint32 {
	h := uint32(key) ^ uint32(len(value))
	for i := len(value) - 1; i >= 0; i-- {
		b := uint32(value[i])
		h ^= (h << 5) + (h >> 2) + b
	}
	return h * knuthHash
}

func (a *Arena) equals(idx int32, key uint8, value []byte) bool {
	e := &a.entries[idx]
	if e.key() != key {
		return false
	}
	eb := e.bytes()
	if len(eb) != len(value) {
		return false
	}
	for i := range eb {
		if eb[i] != value[i] {
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
	a.entries = append(a.entries, entry{})
	return int32(len(a.entries) - 1)
}

// OnInternTableResize registers a callback invoked whenever the backing
// intern table doubles in size.
func (a *Arena) OnInternTableResize(fn func(newBits uint)) { a.table.OnResize(fn) }

// OnIntern registers a callback invoked on every Intern call with
// created=true for a freshly-allocated entry and created=false for a
// reused one, letting callers track interning hit/miss metrics without
// the arena depending on a metrics package itself.
func (a *Arena) OnIntern(fn func(created bool)) { a.onIntern = fn }

// Intern returns the handle for (key, value), incrementing its refcount.
// An identical (key, value) pair already present in the arena is reused;
// otherwise a new entry is created with refcount 1.
func (a *Arena) Intern(key uint8, value []byte) int32 {
	if key > keyMask {
		panic("kvarena: key out of range [0,128)")
	}
	h := kvHash(key, value)
	if it, ok := a.table.Find(h); ok {
		for {
			if a.equals(it.Value(), key, value) {
				idx := it.Value()
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
	e := &a.entries[idx]
	*e = entry{}
	e.setKey(key)
	e.setHash(h)
	e.setRefcount(1)
	e.length = uint8(len(value))
	if len(value) <= inlineCap {
		e.setBlobFlag(false)
		copy(e.inline[:], value)
	} else {
		e.setBlobFlag(true)
		e.blob = append([]byte(nil), value...)
	}
	a.table.Insert(idx)
	if a.onIntern != nil {
		a.onIntern(true)
	}
	return idx
}

// AddRef increments idx's refcount. idx must currently be live.
func (a *Arena) AddRef(idx int32) {
	e := &a.entries[idx]
	e.setRefcount(e.refcount() + 1)
}

// Release decrements idx's refcount. On reaching zero, idx is pushed onto
// the bounded delay queue rather than reclaimed immediately; if the queue
// was already full, the oldest deferred entry is reclaimed now.
func (a *Arena) Release(idx int32) {
	e := &a.entries[idx]
	rc := e.refcount()
	if rc == 0 {
		panic("kvarena: release of entry with zero refcount")
	}
	rc--
	e.setRefcount(rc)
	if rc != 0 {
		return
	}
	if evicted, ok := a.delay.Push(idx); ok {
		if a.onEvict != nil {
			a.onEvict()
		}
		a.reclaim(evicted)
	}
}

// OnEvict registers a callback invoked whenever the delay queue is full
// and must force a physical reclaim to make room for a newly-released
// entry, so callers can track forced-eviction metrics.
func (a *Arena) OnEvict(fn func()) { a.onEvict = fn }

// reclaim physically removes idx from the intern table and returns its
// slot to the free list. A no-op if idx was re-interned (refcount != 0)
// after being queued — this is how the delay queue tolerates
// release-then-reacquire without corrupting a live entry.
func (a *Arena) reclaim(idx int32) {
	e := &a.entries[idx]
	if e.refcount() != 0 {
		return
	}
	a.table.Remove(idx)
	e.blob = nil
	a.free = append(a.free, idx)
}

// Flush drains the delay queue, physically reclaiming every still-zero
// entry immediately. Called by the owning cache's Flush.
func (a *Arena) Flush() {
	a.delay.Drain(a.reclaim)
}

// Bytes returns the value bytes stored at idx.
func (a *Arena) Bytes(idx int32) []byte { return a.entries[idx].bytes() }

// Key returns the attribute key id stored at idx.
func (a *Arena) Key(idx int32) uint8 { return a.entries[idx].key() }

// Refcount returns idx's current refcount.
func (a *Arena) Refcount(idx int32) uint32 { return a.entries[idx].refcount() }

// Hash returns idx's cached (key, value) hash.
func (a *Arena) Hash(idx int32) uint32 { return a.entries[idx].hash() }

// Len returns the number of live (non-freelist) slots ever allocated,
// including ones currently sitting in the delay queue.
func (a *Arena) Len() int { return len(a.entries) - len(a.free) }
