package fuse

import (
	"context"
	"sync"

	"github.com/brimdata/flow/runtime/device"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultCacheSize is the number of compiled kernels a Cache holds by
// default.
const DefaultCacheSize = 128

// Cache compiles kernel sources with a device.Compiler and keeps the most
// recently used results.  A Cache is safe for concurrent use.
type Cache struct {
	compiler device.Compiler
	logger   *zap.Logger
	lru      *lru.Cache[uint64, *entry]
	// mu serializes misses so a source is compiled at most once.
	mu       sync.Mutex
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

type entry struct {
	source string
	kernel device.Kernel
}

func NewCache(compiler device.Compiler, size int, registerer prometheus.Registerer, logger *zap.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[uint64, *entry](size)
	if err != nil {
		return nil, err
	}
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)
	return &Cache{
		compiler: compiler,
		logger:   logger,
		lru:      cache,
		hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_kernel_cache_hits_total",
				Help: "Number of kernel compilations served from the cache.",
			},
			[]string{"compiler"},
		),
		misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_kernel_cache_misses_total",
				Help: "Number of kernel compilations passed to the device compiler.",
			},
			[]string{"compiler"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_kernel_compile_failures_total",
				Help: "Number of kernel sources the device compiler rejected.",
			},
			[]string{"compiler"},
		),
	}, nil
}

func (c *Cache) Compiler() device.Compiler {
	return c.compiler
}

// Compile returns the compiled kernel for src, invoking the device compiler
// only if src is not cached.  Failed compilations are not cached.
func (c *Cache) Compile(ctx context.Context, src string) (device.Kernel, error) {
	key := xxhash.Sum64String(src)
	name := c.compiler.Name()
	if e, ok := c.lru.Get(key); ok && e.source == src {
		c.hits.WithLabelValues(name).Inc()
		return e.kernel, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lru.Get(key); ok && e.source == src {
		c.hits.WithLabelValues(name).Inc()
		return e.kernel, nil
	}
	c.misses.WithLabelValues(name).Inc()
	kernel, err := c.compiler.Compile(ctx, src)
	if err != nil {
		c.failures.WithLabelValues(name).Inc()
		c.logger.Warn("Kernel compilation failed", zap.String("compiler", name), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("Kernel compiled", zap.String("compiler", name), zap.Uint64("hash", key))
	c.lru.Add(key, &entry{source: src, kernel: kernel})
	return kernel, nil
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
