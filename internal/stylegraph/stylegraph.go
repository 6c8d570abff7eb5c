// Package stylegraph implements the style node graph: value nodes holding
// a directly-assigned attribute tuple, and composition nodes lazily
// evaluating to child ⊕ parent (optionally masked). Nodes are addressed
// by small int32 handles and kept on one of two intrusive doubly-linked
// lists — live (refcount > 0) or dead (refcount == 0, awaiting Flush) —
// using the sentinel-(-1) prev/next discipline from
// original_source/style.c's link_to/remove_from, not a circular ring.
//
// Flush reclaims the dead list in two passes, mirroring style_flush:
// pass one transitively releases every dead node's operands (which can
// enqueue further dead nodes, so it loops until the list stops growing);
// pass two clears each node's dependency chain and returns its slot to
// the freelist.
//
// Grounded on original_source/style.c in full (struct style, alloc_style,
// link_to/remove_from, style_create, style_inherit, eval_, style_modify,
// style_assign, make_dirty_/make_dirty, style_addref/release,
// style_flush, dump_key).
package stylegraph

import (
	"fmt"

	"github.com/kelpgfx/stylecache/internal/dirtylist"
	"github.com/kelpgfx/stylecache/internal/inheritcache"
	"github.com/kelpgfx/stylecache/internal/tuplearena"
)

const nilHandle int32 = -1
const numMaskKeys = 128

type kind uint8

const (
	kindValue kind = iota
	kindComposition
)

type node struct {
	k kind

	// composition operands; unused for value nodes.
	child, parent int32
	withMask      bool

	// For a value node, the tuple it directly holds. For a composition
	// node, the memoized evaluation result, or nilHandle if not yet
	// evaluated or invalidated by make_dirty.
	value int32

	prev, next int32
	refcount   uint32
	destroyed  bool // sentinel set during flush pass one, to break the transitive-release recursion
}

// Graph owns a set of style nodes layered over a shared tuplearena.Arena.
type Graph struct {
	tuples  *tuplearena.Arena
	inherit *inheritcache.Cache
	dirty   *dirtylist.List

	nodes []node
	free  []int32

	liveHead, deadHead int32

	mask [numMaskKeys]bool

	onInheritHit  func()
	onInheritMiss func()
}

// New constructs an empty graph. tuples and inherit may be shared across
// multiple graphs if desired; dirty is owned exclusively by this graph.
func New(tuples *tuplearena.Arena, inherit *inheritcache.Cache) *Graph {
	g := &Graph{
		tuples:   tuples,
		inherit:  inherit,
		dirty:    dirtylist.New(),
		liveHead: nilHandle,
		deadHead: nilHandle,
	}
	tuples.OnRetire(inherit.Retire)
	return g
}

// SetMask configures which attribute keys are dropped from a masked
// composition's parent contribution. Keys outside [0,128) are ignored.
func (g *Graph) SetMask(key uint8, masked bool) {
	if int(key) < numMaskKeys {
		g.mask[key] = masked
	}
}

// MaskedKey reports whether key is currently configured to be dropped
// from a masked composition's parent contribution.
func (g *Graph) MaskedKey(key uint8) bool {
	return int(key) < numMaskKeys && g.mask[key]
}

// OnInheritHit registers fn to be called every time eval resolves a
// composition node from the inherit-cache memo instead of recomputing it.
func (g *Graph) OnInheritHit(fn func()) { g.onInheritHit = fn }

// OnInheritMiss registers fn to be called every time eval must recompute
// and memoize a composition node's value.
func (g *Graph) OnInheritMiss(fn func()) { g.onInheritMiss = fn }

func (g *Graph) maskFunc() func(uint8) bool {
	return func(k uint8) bool {
		return int(k) < numMaskKeys && g.mask[k]
	}
}

func (g *Graph) alloc() int32 {
	if n := len(g.free); n > 0 {
		idx := g.free[n-1]
		g.free = g.free[:n-1]
		return idx
	}
	g.nodes = append(g.nodes, node{})
	return int32(len(g.nodes) - 1)
}

func (g *Graph) linkTo(head *int32, idx int32) {
	n := &g.nodes[idx]
	n.prev = nilHandle
	n.next = *head
	if *head != nilHandle {
		g.nodes[*head].prev = idx
	}
	*head = idx
}

func (g *Graph) removeFrom(head *int32, idx int32) {
	n := &g.nodes[idx]
	if n.prev != nilHandle {
		g.nodes[n.prev].next = n.next
	} else {
		*head = n.next
	}
	if n.next != nilHandle {
		g.nodes[n.next].prev = n.prev
	}
	n.prev, n.next = nilHandle, nilHandle
}

// Create allocates a new value node directly holding the canonical tuple
// built from pairs. Returns a handle with refcount 1, owned by the
// caller.
func (g *Graph) Create(pairs []tuplearena.Pair) int32 {
	return g.NewValueNode(g.tuples.Create(pairs))
}

// NewValueNode allocates a new value node wrapping an already-owned
// tuple handle (one ref on tuple is transferred to the new node). Returns
// a handle with refcount 1, owned by the caller.
func (g *Graph) NewValueNode(tuple int32) int32 {
	idx := g.alloc()
	g.nodes[idx] = node{
		k:        kindValue,
		child:    nilHandle,
		parent:   nilHandle,
		value:    tuple,
		refcount: 1,
	}
	g.linkTo(&g.liveHead, idx)
	return idx
}

// Inherit allocates a new composition node evaluating lazily to
// child ⊕ parent. Returns a handle with refcount 0, pending on the dead
// list: callers must AddRef to retain it across a Flush. child and
// parent are addref'd at the graph level (not released until this node
// itself is destroyed), and registered as dirty-list dependencies so
// invalidating either propagates into the new node.
func (g *Graph) Inherit(child, parent int32, withMask bool) int32 {
	g.addRefInternal(child)
	g.addRefInternal(parent)

	idx := g.alloc()
	g.nodes[idx] = node{
		k:        kindComposition,
		child:    child,
		parent:   parent,
		withMask: withMask,
		value:    nilHandle,
		refcount: 0,
	}
	g.dirty.Add(child, idx)
	g.dirty.Add(parent, idx)
	g.linkTo(&g.deadHead, idx)
	return idx
}

// Clone forces evaluation of src and returns a new, independent value
// node sharing src's current tuple (addref, not copy). The clone is not
// linked into src's dirty-list edges: it is a snapshot, not a dependent.
func (g *Graph) Clone(src int32) int32 {
	tup := g.eval(src)
	g.tuples.AddRef(tup)
	return g.NewValueNode(tup)
}

// eval returns the tuple handle idx currently evaluates to, computing
// and memoizing it first if necessary. The returned handle is NOT
// addref'd for the caller; it is only valid as long as idx itself is
// live (callers that need to retain it beyond that must AddRef it via
// the underlying tuplearena directly).
func (g *Graph) eval(idx int32) int32 {
	n := &g.nodes[idx]
	if n.k == kindValue {
		return n.value
	}
	if n.value != nilHandle {
		return n.value
	}

	childTuple := g.eval(n.child)
	parentTuple := g.eval(n.parent)

	if cached, ok := g.inherit.Fetch(childTuple, parentTuple, n.withMask); ok {
		if g.onInheritHit != nil {
			g.onInheritHit()
		}
		g.tuples.AddRef(cached)
		n.value = cached
		return cached
	}
	if g.onInheritMiss != nil {
		g.onInheritMiss()
	}

	var mask func(uint8) bool
	if n.withMask {
		mask = g.maskFunc()
	}
	result := g.tuples.Inherit(childTuple, parentTuple, mask)
	g.inherit.Set(childTuple, parentTuple, n.withMask, result)
	n.value = result
	return result
}

// Eval forces evaluation of idx and returns its current tuple handle
// (not addref'd — valid only as long as idx stays live).
func (g *Graph) Eval(idx int32) int32 { return g.eval(idx) }

// Get returns the (key, value) pairs idx currently evaluates to, in
// canonical key order.
func (g *Graph) Get(idx int32) []tuplearena.Pair {
	tup := g.eval(idx)
	n := g.tuples.Len(tup)
	out := make([]tuplearena.Pair, n)
	for i := 0; i < n; i++ {
		k, v := g.tuples.At(tup, i)
		out[i] = tuplearena.Pair{Key: k, Value: append([]byte(nil), v...)}
	}
	return out
}

// Find looks up idx's current value for key, reporting whether it is
// present.
func (g *Graph) Find(idx int32, key uint8) ([]byte, bool) {
	tup := g.eval(idx)
	n := g.tuples.Len(tup)
	for i := 0; i < n; i++ {
		k, v := g.tuples.At(tup, i)
		if k == key {
			return v, true
		}
	}
	return nil, false
}

// Modify applies ops to a value node idx's directly-held tuple,
// invalidating idx and every transitive dependent whose memoized value
// is affected. Returns whether the resulting tuple differs from the
// prior one, and how many composition nodes were invalidated as a
// result. Panics if idx is not a value node.
func (g *Graph) Modify(idx int32, ops []tuplearena.PatchOp) (changed bool, invalidated int) {
	n := &g.nodes[idx]
	if n.k != kindValue {
		panic("stylegraph: Modify called on a composition node")
	}
	next := g.tuples.Patch(n.value, ops)
	if next == n.value {
		g.tuples.Release(next) // Patch always returns an owned ref; drop the redundant one
		return false, 0
	}
	old := n.value
	n.value = next
	g.tuples.Release(old)
	invalidated = g.makeDirty(idx)
	return true, invalidated
}

// Assign replaces target's directly-held tuple with src's current
// evaluated tuple (shared, taking a new reference), propagating invalidation to target's
// dependents if the value changed. target must be a value node.
func (g *Graph) Assign(target, src int32) (changed bool, invalidated int) {
	n := &g.nodes[target]
	if n.k != kindValue {
		panic("stylegraph: Assign called on a composition node")
	}
	srcTuple := g.eval(src)
	if srcTuple == n.value {
		return false, 0
	}
	g.tuples.AddRef(srcTuple)
	old := n.value
	n.value = srcTuple
	g.tuples.Release(old)
	invalidated = g.makeDirty(target)
	return true, invalidated
}

// makeDirty invalidates idx's memoized composition value (if any) and
// recurses into every live dependent recorded for idx, stopping the
// recursion at nodes that were already invalid. Returns the number of
// composition nodes invalidated by this call, including transitively.
func (g *Graph) makeDirty(idx int32) int {
	count := 0
	dependents := g.dirty.Get(idx, nil)
	for _, dep := range dependents {
		n := &g.nodes[dep]
		if n.k != kindComposition || n.value == nilHandle {
			continue
		}
		g.tuples.Release(n.value)
		n.value = nilHandle
		count++
		count += g.makeDirty(dep)
	}
	return count
}

// addRefInternal takes the graph-level ref Inherit holds on an operand.
// An operand may itself be a pending composition node (refcount 0, on the
// dead list), so this goes through AddRef, which moves it to the live list.
func (g *Graph) addRefInternal(idx int32) {
	g.AddRef(idx)
}

// AddRef increments idx's refcount, moving it from the dead list to the
// live list if this is the transition from zero.
func (g *Graph) AddRef(idx int32) {
	n := &g.nodes[idx]
	if n.refcount == 0 {
		g.removeFrom(&g.deadHead, idx)
		g.linkTo(&g.liveHead, idx)
	}
	n.refcount++
}

// Release decrements idx's refcount, moving it from the live list to the
// dead list on reaching zero. Dead nodes are not physically reclaimed
// until Flush.
func (g *Graph) Release(idx int32) {
	n := &g.nodes[idx]
	if n.refcount == 0 {
		panic("stylegraph: release of node with zero refcount")
	}
	n.refcount--
	if n.refcount == 0 {
		g.removeFrom(&g.liveHead, idx)
		g.linkTo(&g.deadHead, idx)
	}
}

// Refcount returns idx's current graph-level refcount.
func (g *Graph) Refcount(idx int32) uint32 { return g.nodes[idx].refcount }

// Flush physically reclaims every node currently on the dead list.
//
// Pass one transitively releases each dead node's operands (the owned
// tuple for a value node; the child/parent graph refs and any memoized
// tuple for a composition node). Releasing an operand can itself drop a
// node's refcount to zero and enqueue it onto the dead list, so this
// pass loops until a full scan produces no newly-dead node.
//
// Pass two clears each dead node's dirty-list chain (it can no longer
// have live dependents once destroyed) and returns its slot to the
// freelist.
func (g *Graph) Flush() {
	for {
		progressed := false
		idx := g.deadHead
		for idx != nilHandle {
			next := g.nodes[idx].next
			n := &g.nodes[idx]
			if !n.destroyed {
				n.destroyed = true
				progressed = true
				switch n.k {
				case kindValue:
					g.tuples.Release(n.value)
				case kindComposition:
					if n.value != nilHandle {
						g.tuples.Release(n.value)
						n.value = nilHandle
					}
					g.Release(n.child)
					g.Release(n.parent)
				}
			}
			idx = next
		}
		if !progressed {
			break
		}
	}

	idx := g.deadHead
	for idx != nilHandle {
		next := g.nodes[idx].next
		g.dirty.Clear(idx)
		g.removeFrom(&g.deadHead, idx)
		g.nodes[idx] = node{}
		g.free = append(g.free, idx)
		idx = next
	}
}

// LiveCount returns the number of nodes currently on the live list.
func (g *Graph) LiveCount() int {
	n := 0
	for idx := g.liveHead; idx != nilHandle; idx = g.nodes[idx].next {
		n++
	}
	return n
}

// DeadCount returns the number of nodes currently on the dead list
// awaiting Flush.
func (g *Graph) DeadCount() int {
	n := 0
	for idx := g.deadHead; idx != nilHandle; idx = g.nodes[idx].next {
		n++
	}
	return n
}

// SelfCheck walks every live and dead node, verifying the invariants
// link_to/remove_from are supposed to uphold: list membership is
// consistent with refcount, and every operand of a composition node
// refers to an allocated slot. Intended for test use only, mirroring the
// original implementation's style_check debug walk.
func (g *Graph) SelfCheck() error {
	seen := make(map[int32]bool, len(g.nodes))
	check := func(head int32, wantLive bool) error {
		for idx := head; idx != nilHandle; idx = g.nodes[idx].next {
			if seen[idx] {
				return fmt.Errorf("node %d appears twice in the node lists", idx)
			}
			seen[idx] = true
			n := &g.nodes[idx]
			if wantLive && n.refcount == 0 {
				return fmt.Errorf("node %d on live list with zero refcount", idx)
			}
			if !wantLive && n.refcount != 0 {
				return fmt.Errorf("node %d on dead list with nonzero refcount %d", idx, n.refcount)
			}
			if n.k == kindComposition {
				if int(n.child) >= len(g.nodes) || int(n.parent) >= len(g.nodes) {
					return fmt.Errorf("node %d has out-of-range operand", idx)
				}
			}
		}
		return nil
	}
	if err := check(g.liveHead, true); err != nil {
		return err
	}
	if err := check(g.deadHead, false); err != nil {
		return err
	}
	for _, idx := range g.free {
		if seen[idx] {
			return fmt.Errorf("freed node %d still appears in a list", idx)
		}
	}
	return nil
}

// ExplainFrame is one step of an Explain walk: the node visited and
// whether it directly resolved the requested key.
type ExplainFrame struct {
	Handle   int32
	Kind     string
	Resolved bool
	Value    []byte
}

// Explain walks the composition chain rooted at idx looking for key,
// returning one frame per node visited (child branch first, since a
// child's own value always wins over its parent's). The last frame, if
// Resolved, carries the value; an unresolved walk means the key is
// absent everywhere in the chain.
func (g *Graph) Explain(idx int32, key uint8) []ExplainFrame {
	var frames []ExplainFrame
	g.explain(idx, key, &frames)
	return frames
}

func (g *Graph) explain(idx int32, key uint8, frames *[]ExplainFrame) bool {
	n := &g.nodes[idx]
	switch n.k {
	case kindValue:
		m := g.tuples.Len(n.value)
		for i := 0; i < m; i++ {
			k, v := g.tuples.At(n.value, i)
			if k == key {
				*frames = append(*frames, ExplainFrame{Handle: idx, Kind: "value", Resolved: true, Value: v})
				return true
			}
		}
		*frames = append(*frames, ExplainFrame{Handle: idx, Kind: "value", Resolved: false})
		return false
	case kindComposition:
		*frames = append(*frames, ExplainFrame{Handle: idx, Kind: "composition", Resolved: false})
		if g.explain(n.child, key, frames) {
			return true
		}
		if n.withMask && int(key) < numMaskKeys && g.mask[key] {
			return false
		}
		return g.explain(n.parent, key, frames)
	default:
		panic(fmt.Sprintf("stylegraph: corrupt node kind %d at handle %d", n.k, idx))
	}
}

// MemSize returns an approximate resident size in bytes of the node
// table, for diagnostics.
func (g *Graph) MemSize() int {
	return len(g.nodes) * 40 // rough per-node footprint; not load-bearing
}
