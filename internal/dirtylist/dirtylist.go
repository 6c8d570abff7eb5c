// Package dirtylist implements the per-node dependent list used by the
// style graph to propagate invalidation without eagerly walking or
// rewriting every edge on every change.
//
// Each node id owns a singly-linked chain of slots recording the other
// node ids that depend on it (were composed from it). A slot also
// captures the *version* of its target at insertion time. A node's
// version is bumped by Clear, which both empties that node's own chain
// and — for free — invalidates every slot elsewhere in the structure
// that still points at it with the old version stamp. Get lazily
// reclaims those stale slots the next time the owning chain is walked,
// so invalidation never requires a structure-wide sweep.
//
// Ported from original_source/dirtylist.c/.h.
package dirtylist

const initialSize = 1024

type head struct {
	version uint32
	head    int32 // index into slots, or -1
}

type slot struct {
	version uint32 // target's version, captured at Add time
	target  int32
	next    int32 // index into slots, or -1
}

const nilSlot = -1

// List is a dependency graph keyed by small integer node ids.
type List struct {
	heads    []head
	slots    []slot
	freelist int32
}

// New constructs an empty list.
func New() *List {
	return &List{
		heads:    make([]head, 0, initialSize/4),
		slots:    make([]slot, 0, initialSize),
		freelist: nilSlot,
	}
}

func (l *List) ensure(id int32) {
	for int32(len(l.heads)) <= id {
		l.heads = append(l.heads, head{head: nilSlot})
	}
}

// Add records that target depends on owner: target will appear in a
// later Get(owner) call until owner's Clear bumps its version, or
// target's own Clear makes this slot stale.
func (l *List) Add(owner, target int32) {
	l.ensure(owner)
	l.ensure(target)

	s := slot{
		version: l.heads[target].version,
		target:  target,
		next:    l.heads[owner].head,
	}

	var idx int32
	if l.freelist != nilSlot {
		idx = l.freelist
		l.freelist = l.slots[idx].next
		s.next = l.heads[owner].head
		l.slots[idx] = s
	} else {
		idx = int32(len(l.slots))
		l.slots = append(l.slots, s)
	}
	l.heads[owner].head = idx
}

// Clear bumps owner's version (retroactively invalidating any recorded
// edge that points at owner) and frees owner's own chain back onto the
// freelist.
func (l *List) Clear(owner int32) {
	l.ensure(owner)
	l.heads[owner].version++

	idx := l.heads[owner].head
	for idx != nilSlot {
		next := l.slots[idx].next
		l.slots[idx].next = l.freelist
		l.freelist = idx
		idx = next
	}
	l.heads[owner].head = nilSlot
}

func (l *List) alive(s *slot) bool {
	return int(s.target) < len(l.heads) && s.version == l.heads[s.target].version
}

// Get walks owner's chain, reclaiming any slot whose target has since
// been Clear-ed, and appends the remaining live targets to dst.
func (l *List) Get(owner int32, dst []int32) []int32 {
	if int(owner) >= len(l.heads) {
		return dst
	}
	prev := int32(nilSlot)
	idx := l.heads[owner].head
	for idx != nilSlot {
		next := l.slots[idx].next
		if l.alive(&l.slots[idx]) {
			dst = append(dst, l.slots[idx].target)
			prev = idx
		} else {
			// Unlink and recycle the stale slot in place.
			if prev == nilSlot {
				l.heads[owner].head = next
			} else {
				l.slots[prev].next = next
			}
			l.slots[idx].next = l.freelist
			l.freelist = idx
		}
		idx = next
	}
	return dst
}
