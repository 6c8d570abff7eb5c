package stylecache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Sentinel construction-time validation errors. All other contract
// violations (refcount underflow, invalid handle, modifying a
// composition node, key out of range) panic — these are the only errors
// New can return.
var (
	errInvalidCapacity = errors.New("stylecache: delay queue capacity must be > 0")
)

// config holds the fully-resolved, validated construction parameters for
// a Cache. Exactly the teacher's config/Option/defaultConfig/applyOptions
// shape (arena-cache's pkg/config.go), generalized from a generic
// Cache[K,V] to this package's fixed key/value domain.
type config struct {
	logger         *zap.Logger
	metricsReg     *prometheus.Registry
	kvDelayCap     int
	tupleDelayCap  int
}

// Option configures a Cache at construction time.
type Option func(*config)

func defaultConfig() config {
	return config{
		logger:        zap.NewNop(),
		kvDelayCap:    4096,
		tupleDelayCap: 4096,
	}
}

// WithLogger attaches a zap logger. The engine only logs at Debug (intern
// table resizes, delay-queue overflow evictions) and Warn (inherit-cache
// version wraparound sweep) — never on the hot path.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics registers the cache's Prometheus collectors against reg.
// Without this option, metrics are a no-op.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.metricsReg = reg }
}

// WithDelayQueueCapacity overrides the default bounded delay-queue depth
// (4096) used by both the KV arena and the tuple arena before a release
// forces a physical reclaim.
func WithDelayQueueCapacity(kv, tuple int) Option {
	return func(c *config) {
		c.kvDelayCap = kv
		c.tupleDelayCap = tuple
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.kvDelayCap <= 0 || cfg.tupleDelayCap <= 0 {
		return config{}, errInvalidCapacity
	}
	return cfg, nil
}
