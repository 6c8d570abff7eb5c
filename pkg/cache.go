package stylecache

import (
	"go.uber.org/zap"

	"github.com/kelpgfx/stylecache/internal/inheritcache"
	"github.com/kelpgfx/stylecache/internal/kvarena"
	"github.com/kelpgfx/stylecache/internal/stylegraph"
	"github.com/kelpgfx/stylecache/internal/tuplearena"
)

// Cache is the top-level style-attribute cache, wiring together the KV
// arena (§4.2), tuple arena (§4.3), inherit-composition memo (§4.4) and
// style node graph (§4.5/§4.6) behind one handle-based API. A *Cache must
// only be used from a single goroutine at a time.
type Cache struct {
	cfg     config
	metrics metricsSink

	kv      *kvarena.Arena
	tuples  *tuplearena.Arena
	inherit *inheritcache.Cache
	graph   *stylegraph.Graph
}

// New constructs a Cache. The only error case is invalid construction
// parameters (e.g. a non-positive delay-queue capacity); every other
// contract violation during normal operation panics, per this package's
// error-handling convention (see DESIGN.md).
func New(opts ...Option) (*Cache, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	metrics := newMetricsSink(cfg.metricsReg)

	kv := kvarena.NewWithCapacity(cfg.kvDelayCap)
	tuples := tuplearena.NewWithCapacity(kv, cfg.tupleDelayCap)
	inherit := inheritcache.New()
	graph := stylegraph.New(tuples, inherit)

	logger := cfg.logger

	kv.OnInternTableResize(func(bits uint) {
		logger.Debug("kv intern table resized", zap.Uint("new_bits", bits))
	})
	kv.OnIntern(func(created bool) {
		if created {
			metrics.kvInterned()
		} else {
			metrics.kvReused()
		}
	})
	kv.OnEvict(func() {
		metrics.delayQueueEviction("kv")
		logger.Debug("kv delay queue overflow forced a physical reclaim")
	})

	tuples.OnInternTableResize(func(bits uint) {
		logger.Debug("tuple intern table resized", zap.Uint("new_bits", bits))
	})
	tuples.OnIntern(func(created bool) {
		if created {
			metrics.tupleInterned()
		} else {
			metrics.tupleReused()
		}
	})
	tuples.OnEvict(func() {
		metrics.delayQueueEviction("tuple")
		logger.Debug("tuple delay queue overflow forced a physical reclaim")
	})

	inherit.OnWrap(func(id int32) {
		logger.Warn("inherit cache version counter wrapped, sweeping all entries", zap.Int32("id", id))
	})
	graph.OnInheritHit(metrics.inheritCacheHit)
	graph.OnInheritMiss(metrics.inheritCacheMiss)

	return &Cache{
		cfg:     cfg,
		metrics: metrics,
		kv:      kv,
		tuples:  tuples,
		inherit: inherit,
		graph:   graph,
	}, nil
}

// Close flushes every pending delayed release. A Cache has no other
// resources to release; Close exists for symmetry with the teacher's
// New/Close pairing and so a Cache can be used with defer.
func (c *Cache) Close() {
	c.Flush()
}

// --- attribute-tuple level API (original_source/attrib.h) ---

// EntryID interns (key, value) as a single KV entry, returning its
// handle. Exposed for low-level inspection and testing; CreateAttrib is
// the normal entry point for building a tuple.
func (c *Cache) EntryID(key uint8, value []byte) EntryID {
	return EntryID(c.kv.Intern(key, value))
}

// ReleaseEntry releases one reference on a KV entry obtained via EntryID.
func (c *Cache) ReleaseEntry(id EntryID) {
	c.kv.Release(int32(id))
}

// CreateAttrib canonicalizes pairs (later duplicate key wins) and returns
// the interned handle of the resulting tuple, owning one reference.
func (c *Cache) CreateAttrib(pairs []tuplearena.Pair) AttribHandle {
	return AttribHandle(c.tuples.Create(pairs))
}

// ReleaseAttrib releases one reference on h.
func (c *Cache) ReleaseAttrib(h AttribHandle) {
	c.tuples.Release(int32(h))
}

// AddRefAttrib increments h's refcount.
func (c *Cache) AddRefAttrib(h AttribHandle) {
	c.tuples.AddRef(int32(h))
}

// AttribRefcount returns h's current refcount.
func (c *Cache) AttribRefcount(h AttribHandle) uint32 {
	return c.tuples.Refcount(int32(h))
}

// GetAttrib returns h's (key, value) pairs in canonical key order.
func (c *Cache) GetAttrib(h AttribHandle) []tuplearena.Pair {
	n := c.tuples.Len(int32(h))
	out := make([]tuplearena.Pair, n)
	for i := 0; i < n; i++ {
		k, v := c.tuples.At(int32(h), i)
		out[i] = tuplearena.Pair{Key: k, Value: append([]byte(nil), v...)}
	}
	return out
}

// FindAttrib returns h's value for key, or (nil, false) if absent.
func (c *Cache) FindAttrib(h AttribHandle, key uint8) ([]byte, bool) {
	n := c.tuples.Len(int32(h))
	for i := 0; i < n; i++ {
		k, v := c.tuples.At(int32(h), i)
		if k == key {
			return v, true
		}
	}
	return nil, false
}

// IndexAttrib returns the key/value pair at position i of h's canonical
// order, or (0, nil, false) if i is out of range.
func (c *Cache) IndexAttrib(h AttribHandle, i int) (uint8, []byte, bool) {
	if i < 0 || i >= c.tuples.Len(int32(h)) {
		return 0, nil, false
	}
	k, v := c.tuples.At(int32(h), i)
	return k, v, true
}

// InheritAttrib composes child over parent directly at the tuple level,
// without creating a style node. The result is a new owned handle;
// child and parent are unaffected.
func (c *Cache) InheritAttrib(child, parent AttribHandle, withMask bool) AttribHandle {
	var mask func(uint8) bool
	if withMask {
		mask = c.maskFunc
	}
	return AttribHandle(c.tuples.Inherit(int32(child), int32(parent), mask))
}

// --- style graph level API (original_source/style.h) ---

// SetMask configures whether key is dropped from a masked composition's
// parent contribution.
func (c *Cache) SetMask(key uint8, masked bool) {
	c.graph.SetMask(key, masked)
}

func (c *Cache) maskFunc(key uint8) bool {
	return c.graph.MaskedKey(key)
}

// StyleCreate allocates a new value-node style directly holding the
// canonical tuple built from pairs.
func (c *Cache) StyleCreate(pairs []tuplearena.Pair) StyleHandle {
	return StyleHandle(c.graph.Create(pairs))
}

// StyleFromAttrib allocates a new value-node style wrapping an
// already-owned attribute handle (ownership of one reference transfers
// to the new style node).
func (c *Cache) StyleFromAttrib(h AttribHandle) StyleHandle {
	return StyleHandle(c.graph.NewValueNode(int32(h)))
}

// StyleInherit allocates a new composition style evaluating lazily to
// child ⊕ parent.
func (c *Cache) StyleInherit(child, parent StyleHandle, withMask bool) StyleHandle {
	return StyleHandle(c.graph.Inherit(int32(child), int32(parent), withMask))
}

// StyleModify applies ops to h's directly-held tuple (h must be a value
// node), invalidating h and every affected dependent. Returns true if the
// result differs from the prior value.
func (c *Cache) StyleModify(h StyleHandle, ops []tuplearena.PatchOp) bool {
	changed, invalidated := c.graph.Modify(int32(h), ops)
	if changed {
		c.metrics.dirtyPropagations(invalidated)
	}
	return changed
}

// StyleAssign replaces target's directly-held tuple with src's current
// evaluated tuple (shared, taking a new reference). target must be a
// value node.
func (c *Cache) StyleAssign(target, src StyleHandle) bool {
	changed, invalidated := c.graph.Assign(int32(target), int32(src))
	if changed {
		c.metrics.dirtyPropagations(invalidated)
	}
	return changed
}

// StyleClone returns a new, independent value-node style sharing src's
// current evaluated tuple.
func (c *Cache) StyleClone(src StyleHandle) StyleHandle {
	return StyleHandle(c.graph.Clone(int32(src)))
}

// StyleAddRef increments h's refcount.
func (c *Cache) StyleAddRef(h StyleHandle) {
	c.graph.AddRef(int32(h))
}

// StyleRelease decrements h's refcount. h is not physically reclaimed
// until Flush.
func (c *Cache) StyleRelease(h StyleHandle) {
	c.graph.Release(int32(h))
}

// StyleRefcount returns h's current refcount.
func (c *Cache) StyleRefcount(h StyleHandle) uint32 {
	return c.graph.Refcount(int32(h))
}

// StyleEval forces evaluation of h and returns its current tuple handle.
func (c *Cache) StyleEval(h StyleHandle) AttribHandle {
	return AttribHandle(c.graph.Eval(int32(h)))
}

// StyleFind returns h's current value for key, or (nil, false) if absent.
func (c *Cache) StyleFind(h StyleHandle, key uint8) ([]byte, bool) {
	return c.graph.Find(int32(h), key)
}

// StyleIndex returns the i-th (key, value) pair of h's current evaluated
// value, or (0, nil, false) if out of range.
func (c *Cache) StyleIndex(h StyleHandle, i int) (uint8, []byte, bool) {
	pairs := c.graph.Get(int32(h))
	if i < 0 || i >= len(pairs) {
		return 0, nil, false
	}
	return pairs[i].Key, pairs[i].Value, true
}

// Explain walks h's composition chain looking for key, returning one
// frame per node visited (child branch first).
func (c *Cache) Explain(h StyleHandle, key uint8) []stylegraph.ExplainFrame {
	return c.graph.Explain(int32(h), key)
}

// Flush physically reclaims every style node, tuple and KV entry
// currently queued for delayed release, and updates the live/dead and
// mem-bytes gauges.
func (c *Cache) Flush() {
	c.graph.Flush()
	c.tuples.Flush()
	c.kv.Flush()
	c.metrics.setStyleCounts(c.graph.LiveCount(), c.graph.DeadCount())
	c.metrics.setMemBytes(c.MemSize())
}

// MemSize returns an approximate resident byte count across the node
// table, exposed as the stylecache_mem_bytes gauge.
func (c *Cache) MemSize() int64 {
	return int64(c.graph.MemSize())
}

// LiveCount returns the number of style nodes currently reachable with a
// nonzero refcount.
func (c *Cache) LiveCount() int {
	return c.graph.LiveCount()
}

// DeadCount returns the number of style nodes released but not yet
// reclaimed by Flush.
func (c *Cache) DeadCount() int {
	return c.graph.DeadCount()
}

// selfCheck walks the node graph verifying list/refcount invariants.
// Test-only; mirrors the original implementation's style_check.
func (c *Cache) selfCheck() error {
	return c.graph.SelfCheck()
}
