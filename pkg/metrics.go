package stylecache

import "github.com/prometheus/client_golang/prometheus"

// metricsSink is the engine's view of its own metrics, mirroring
// arena-cache's pkg/metrics.go factory/interface split. The Prometheus
// implementation holds the client library's Counter/Gauge collectors
// directly; the sink adds no locking or atomics of its own, since the
// engine is single-threaded by Non-goal.
type metricsSink interface {
	kvInterned()
	kvReused()
	tupleInterned()
	tupleReused()
	inheritCacheHit()
	inheritCacheMiss()
	delayQueueEviction(arena string)
	dirtyPropagations(n int)
	setStyleCounts(live, dead int)
	setMemBytes(n int64)
}

type noopMetrics struct{}

func (noopMetrics) kvInterned()                    {}
func (noopMetrics) kvReused()                      {}
func (noopMetrics) tupleInterned()                 {}
func (noopMetrics) tupleReused()                   {}
func (noopMetrics) inheritCacheHit()                {}
func (noopMetrics) inheritCacheMiss()               {}
func (noopMetrics) delayQueueEviction(string)        {}
func (noopMetrics) dirtyPropagations(int)            {}
func (noopMetrics) setStyleCounts(int, int)          {}
func (noopMetrics) setMemBytes(int64)                {}

// promMetrics implements metricsSink against a caller-supplied registry,
// with metric names and the "stylecache" namespace matching §6 of the
// project's full specification (the teacher's `arena_cache` namespace
// convention in pkg/metrics.go, renamed to this domain).
type promMetrics struct {
	kvInternedTotal      prometheus.Counter
	kvReusedTotal        prometheus.Counter
	tupleInternedTotal   prometheus.Counter
	tupleReusedTotal     prometheus.Counter
	inheritHitsTotal     prometheus.Counter
	inheritMissesTotal   prometheus.Counter
	delayQueueEvictions  *prometheus.CounterVec
	dirtyPropagationsCtr prometheus.Counter
	styleLive            prometheus.Gauge
	styleDead            prometheus.Gauge
	memBytes             prometheus.Gauge
}

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	m := &promMetrics{
		kvInternedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "kv_interned_total",
			Help: "KV entries created on the cache-miss path of EntryID.",
		}),
		kvReusedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "kv_reused_total",
			Help: "EntryID calls that hit an existing intern entry.",
		}),
		tupleInternedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "tuple_interned_total",
			Help: "New tuples created by attrib_create.",
		}),
		tupleReusedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "tuple_reused_total",
			Help: "attrib_create calls returning an existing tuple.",
		}),
		inheritHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "inherit_cache_hits_total",
			Help: "Inherit-cache memoization hits.",
		}),
		inheritMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "inherit_cache_misses_total",
			Help: "Inherit-cache memoization misses.",
		}),
		delayQueueEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "delay_queue_evictions_total",
			Help: "Physical frees forced by delay-queue overflow.",
		}, []string{"arena"}),
		dirtyPropagationsCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylecache", Name: "dirty_propagations_total",
			Help: "Composition nodes invalidated by a single Modify/Assign call.",
		}),
		styleLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stylecache", Name: "style_live",
			Help: "Style nodes currently on the live list.",
		}),
		styleDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stylecache", Name: "style_dead",
			Help: "Style nodes currently on the dead list awaiting Flush.",
		}),
		memBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stylecache", Name: "mem_bytes",
			Help: "Approximate resident bytes of the style node table.",
		}),
	}
	reg.MustRegister(
		m.kvInternedTotal, m.kvReusedTotal,
		m.tupleInternedTotal, m.tupleReusedTotal,
		m.inheritHitsTotal, m.inheritMissesTotal,
		m.delayQueueEvictions, m.dirtyPropagationsCtr,
		m.styleLive, m.styleDead, m.memBytes,
	)
	return m
}

func (m *promMetrics) kvInterned()        { m.kvInternedTotal.Inc() }
func (m *promMetrics) kvReused()          { m.kvReusedTotal.Inc() }
func (m *promMetrics) tupleInterned()     { m.tupleInternedTotal.Inc() }
func (m *promMetrics) tupleReused()       { m.tupleReusedTotal.Inc() }
func (m *promMetrics) inheritCacheHit()   { m.inheritHitsTotal.Inc() }
func (m *promMetrics) inheritCacheMiss()  { m.inheritMissesTotal.Inc() }

func (m *promMetrics) delayQueueEviction(arena string) {
	m.delayQueueEvictions.WithLabelValues(arena).Inc()
}

func (m *promMetrics) dirtyPropagations(n int) {
	m.dirtyPropagationsCtr.Add(float64(n))
}

func (m *promMetrics) setStyleCounts(live, dead int) {
	m.styleLive.Set(float64(live))
	m.styleDead.Set(float64(dead))
}

func (m *promMetrics) setMemBytes(n int64) {
	m.memBytes.Set(float64(n))
}
