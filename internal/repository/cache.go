package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
)

const bundleKeyPrefix = "triage:bundle:"

// BundleCacheConfig configures the two-tier bundle cache
type BundleCacheConfig struct {
	MemorySize int
	TTL        time.Duration
}

// BundleCacheStats represents cache performance statistics
type BundleCacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	StoreReads   int64 `json:"store_reads"`
	RedisErrors  int64 `json:"redis_errors"`
}

// cachedDocument is the Redis representation of a stored bundle.
type cachedDocument struct {
	PatientID int64           `json:"patient_id"`
	Document  json.RawMessage `json:"document"`
}

// CachedBundleRepository decorates a BundleRepository with an in-process LRU
// (tier 1) and an optional Redis cache (tier 2). Only bundles found in the
// store are cached; absence is always read through.
type CachedBundleRepository struct {
	next   domain.BundleRepository
	memory *expirable.LRU[string, *domain.ClinicalBundle]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	redisHits    atomic.Int64
	redisMisses  atomic.Int64
	storeReads   atomic.Int64
	redisErrors  atomic.Int64
}

// NewCachedBundleRepository creates a cached bundle repository. redisClient
// may be nil to run with the in-process tier only.
func NewCachedBundleRepository(next domain.BundleRepository, redisClient *redis.Client, config BundleCacheConfig, logger *logrus.Logger) *CachedBundleRepository {
	if config.MemorySize <= 0 {
		config.MemorySize = 1000
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	return &CachedBundleRepository{
		next:   next,
		memory: expirable.NewLRU[string, *domain.ClinicalBundle](config.MemorySize, nil, config.TTL),
		redis:  redisClient,
		ttl:    config.TTL,
		logger: logger,
	}
}

// GetByMRN returns the bundle for mrn, consulting memory, then Redis, then
// the underlying store.
func (c *CachedBundleRepository) GetByMRN(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	if bundle, ok := c.memory.Get(mrn); ok {
		c.memoryHits.Add(1)
		return bundle, nil
	}
	c.memoryMisses.Add(1)

	if bundle := c.getFromRedis(ctx, mrn); bundle != nil {
		c.redisHits.Add(1)
		c.memory.Add(mrn, bundle)
		return bundle, nil
	}

	c.storeReads.Add(1)
	bundle, err := c.next.GetByMRN(ctx, mrn)
	if err != nil {
		return nil, err
	}

	c.memory.Add(mrn, bundle)
	c.setInRedis(ctx, mrn, bundle)
	return bundle, nil
}

// Invalidate drops mrn from both tiers.
func (c *CachedBundleRepository) Invalidate(ctx context.Context, mrn string) error {
	c.memory.Remove(mrn)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, bundleKeyPrefix+mrn).Err(); err != nil {
		return fmt.Errorf("invalidating cached bundle %s: %w", mrn, err)
	}
	return nil
}

// Stats returns cache performance statistics
func (c *CachedBundleRepository) Stats() BundleCacheStats {
	return BundleCacheStats{
		MemoryHits:   c.memoryHits.Load(),
		MemoryMisses: c.memoryMisses.Load(),
		RedisHits:    c.redisHits.Load(),
		RedisMisses:  c.redisMisses.Load(),
		StoreReads:   c.storeReads.Load(),
		RedisErrors:  c.redisErrors.Load(),
	}
}

func (c *CachedBundleRepository) getFromRedis(ctx context.Context, mrn string) *domain.ClinicalBundle {
	if c.redis == nil {
		return nil
	}

	data, err := c.redis.Get(ctx, bundleKeyPrefix+mrn).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.redisErrors.Add(1)
			c.logger.WithError(err).WithField("mrn", mrn).Warn("Redis bundle lookup failed")
		}
		c.redisMisses.Add(1)
		return nil
	}

	var doc cachedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.redisMisses.Add(1)
		return nil
	}
	bundle, err := decodeStoredBundle(doc.PatientID, mrn, doc.Document)
	if err != nil {
		c.redisMisses.Add(1)
		return nil
	}
	return bundle
}

func (c *CachedBundleRepository) setInRedis(ctx context.Context, mrn string, bundle *domain.ClinicalBundle) {
	if c.redis == nil || len(bundle.Source) == 0 {
		return
	}

	data, err := json.Marshal(cachedDocument{PatientID: bundle.PatientID, Document: bundle.Source})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, bundleKeyPrefix+mrn, data, c.ttl).Err(); err != nil {
		c.redisErrors.Add(1)
		c.logger.WithError(err).WithField("mrn", mrn).Warn("Failed to cache bundle in Redis")
	}
}

// NewRedisClient connects to cfg.RedisURL and verifies the connection.
func NewRedisClient(ctx context.Context, cfg domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
