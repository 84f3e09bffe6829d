package project

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/compress"
	"github.com/arloliu/projpred/encoding"
	"github.com/arloliu/projpred/endian"
	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/format"
	"github.com/arloliu/projpred/internal/options"
)

// DefaultCacheSize is the default maximum number of cached projections.
const DefaultCacheSize = 256

// CacheConfig configures a projection cache.
type CacheConfig struct {
	// Size is the maximum number of cached projections.
	Size int
	// Compression is applied to the encoded projection payloads.
	Compression format.CompressionType
	// Logger receives debug output.
	Logger *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption = options.Option[*CacheConfig]

// WithCacheSize sets the maximum number of cached projections.
func WithCacheSize(size int) CacheOption {
	return options.New(func(c *CacheConfig) error {
		if size <= 0 {
			return fmt.Errorf("%w: cache size must be positive, got %d", errs.ErrConfiguration, size)
		}
		c.Size = size

		return nil
	})
}

// WithCompression sets the payload compression of cached entries.
func WithCompression(ct format.CompressionType) CacheOption {
	return options.New(func(c *CacheConfig) error {
		if _, err := compress.GetCodec(ct); err != nil {
			return fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
		}
		c.Compression = ct

		return nil
	})
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return options.NoError(func(c *CacheConfig) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

func defaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Size:        DefaultCacheSize,
		Compression: format.CompressionNone,
		Logger:      zap.NewNop(),
	}
}

// cacheEntry is one stored projection.
type cacheEntry struct {
	scope   string
	payload []byte
	raw     int // encoded size before compression
}

// cachedProjection is a decoded cache entry. Coefficient columns are stored
// in canonical (sorted subset) order.
type cachedProjection struct {
	coef       *mat.Dense
	dispersion []float64
	deviance   []float64
	iterations []int
	converged  []bool
}

// Cache is a bounded LRU store of projections keyed by model scope, draw set
// and canonical subset.
//
// Entries are encoded as float64 matrices and optionally compressed. Scopes
// (the full data, or one cross-validation fold) can be invalidated explicitly
// so that fold-specific projections never outlive their fold. The cache is
// safe for concurrent use.
type Cache struct {
	entries *lru.Cache[uint64, cacheEntry]
	codec   compress.Codec
	cfg     *CacheConfig
	encoder encoding.MatrixEncoder
	decoder encoding.MatrixDecoder

	mu     sync.Mutex
	scopes map[string]map[uint64]struct{}

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	bytes     atomic.Int64
	rawBytes  atomic.Int64
}

// NewCache creates a projection cache.
//
// Example:
//
//	cache, err := project.NewCache(project.WithCacheSize(512), project.WithCompression(format.CompressionS2))
//	proj, err := project.New(project.WithCache(cache))
func NewCache(opts ...CacheOption) (*Cache, error) {
	cfg, err := options.Build(defaultCacheConfig, opts...)
	if err != nil {
		return nil, err
	}
	codec, err := compress.GetCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}

	engine := endian.GetLittleEndianEngine()
	c := &Cache{
		codec:   codec,
		cfg:     cfg,
		encoder: encoding.NewMatrixEncoder(engine),
		decoder: encoding.NewMatrixDecoder(engine),
		scopes:  make(map[string]map[uint64]struct{}),
	}
	c.entries, err = lru.NewWithEvict[uint64, cacheEntry](cfg.Size, c.handleEviction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}

	return c, nil
}

// handleEviction keeps the scope index and byte accounting in step with the LRU.
func (c *Cache) handleEviction(key uint64, e cacheEntry) {
	c.evictions.Add(1)
	c.bytes.Add(-int64(len(e.payload)))
	c.rawBytes.Add(-int64(e.raw))

	c.mu.Lock()
	if keys, ok := c.scopes[e.scope]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.scopes, e.scope)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) get(key uint64) (*cachedProjection, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	cp, err := c.decode(e.payload)
	if err != nil {
		c.cfg.Logger.Debug("cache entry decode failed", zap.Uint64("key", key), zap.Error(err))
		c.entries.Remove(key)
		c.misses.Add(1)

		return nil, false
	}
	c.hits.Add(1)

	return cp, true
}

func (c *Cache) put(scope string, key uint64, sub *Submodel) {
	payload, raw, err := c.encode(sub)
	if err != nil {
		c.cfg.Logger.Debug("cache entry encode failed", zap.Error(err))
		return
	}

	if old, ok := c.entries.Peek(key); ok {
		c.bytes.Add(-int64(len(old.payload)))
		c.rawBytes.Add(-int64(old.raw))
	}
	c.entries.Add(key, cacheEntry{scope: scope, payload: payload, raw: raw})
	c.bytes.Add(int64(len(payload)))
	c.rawBytes.Add(int64(raw))

	c.mu.Lock()
	keys, ok := c.scopes[scope]
	if !ok {
		keys = make(map[uint64]struct{})
		c.scopes[scope] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
}

// encode returns the compressed payload and its uncompressed size.
func (c *Cache) encode(sub *Submodel) ([]byte, int, error) {
	s := sub.draws.Len()
	iterations := make([]float64, s)
	converged := make([]float64, s)
	for r := 0; r < s; r++ {
		iterations[r] = float64(sub.iterations[r])
		if sub.converged[r] {
			converged[r] = 1
		}
	}
	coef := permuteColumns(sub.draws.Coefficients(), canonicalPositions(sub.subset), true)
	raw := c.encoder.Encode(coef, sub.Dispersion(), sub.deviance, iterations, converged)
	payload, err := c.codec.Compress(raw)
	if err != nil {
		return nil, 0, err
	}

	return payload, len(raw), nil
}

func (c *Cache) decode(payload []byte) (*cachedProjection, error) {
	raw, err := c.codec.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrCacheDecode, err)
	}
	coef, vectors, err := c.decoder.Decode(raw)
	if err != nil {
		return nil, err
	}
	if coef == nil || len(vectors) != 4 {
		return nil, fmt.Errorf("%w: unexpected payload layout", errs.ErrCacheDecode)
	}
	s, _ := coef.Dims()
	if len(vectors[1]) != s || len(vectors[2]) != s || len(vectors[3]) != s {
		return nil, fmt.Errorf("%w: vector lengths disagree with %d draws", errs.ErrCacheDecode, s)
	}

	cp := &cachedProjection{
		coef:       coef,
		dispersion: vectors[0],
		deviance:   vectors[1],
		iterations: make([]int, s),
		converged:  make([]bool, s),
	}
	if len(cp.dispersion) == 0 {
		cp.dispersion = nil
	}
	for r := 0; r < s; r++ {
		cp.iterations[r] = int(vectors[2][r])
		cp.converged[r] = vectors[3][r] != 0
	}

	return cp, nil
}

// Invalidate removes every projection of the given scope and returns how many were removed.
func (c *Cache) Invalidate(scope string) int {
	c.mu.Lock()
	keys := make([]uint64, 0, len(c.scopes[scope]))
	for k := range c.scopes[scope] {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	removed := 0
	for _, k := range keys {
		if c.entries.Remove(k) {
			removed++
		}
	}
	c.cfg.Logger.Debug("cache scope invalidated", zap.String("scope", scope), zap.Int("entries", removed))

	return removed
}

// Purge removes every cached projection.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached projections.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// CacheStats holds cache performance statistics.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Entries     int
	Bytes       int64
	RawBytes    int64   // encoded size before compression
	Ratio       float64 // Bytes / RawBytes, 0 when empty
	HitRate     float64
	Compression format.CompressionType
}

// Stats returns current cache statistics. Evictions include invalidated and
// purged entries.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	stored, raw := c.bytes.Load(), c.rawBytes.Load()

	return CacheStats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Entries:     c.entries.Len(),
		Bytes:       stored,
		RawBytes:    raw,
		Ratio:       compress.Ratio(int(raw), int(stored)),
		HitRate:     hitRate,
		Compression: c.cfg.Compression,
	}
}
