// Package app assembles the record store stack and the triage core from
// configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/database"
	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/repository"
	"github.com/clinical-triage-server/internal/service"
)

// backend is a concrete store: readable, writable and health-checked.
type backend interface {
	domain.RecordStore
	domain.RecordWriter
}

// Stores holds the decorated read path and the raw write path.
type Stores struct {
	// Records is the breaker-guarded read side.
	Records *repository.ResilientStore
	// Bundles reads through the bundle cache when enabled.
	Bundles domain.BundleRepository
	// Cache is nil when caching is disabled.
	Cache *repository.CachedBundleRepository
	// Writer is the undecorated backend, used for seeding.
	Writer backend

	closers []func()
}

// OpenStores opens the configured backend and wraps it with the circuit
// breaker and the bundle cache. A Redis outage at startup degrades to the
// in-process cache tier.
func OpenStores(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Stores, error) {
	stores := &Stores{}

	switch cfg.Store.Driver {
	case domain.StoreDriverSQLite:
		store, err := repository.NewSQLiteStore(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		stores.Writer = store
		stores.closers = append(stores.closers, func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close sqlite store")
			}
		})

	case domain.StoreDriverPostgres:
		dbCfg := database.ConfigFromDomain(cfg.Database)
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, dbCfg.URL(), database.DialectPostgres, logger); err != nil {
				return nil, fmt.Errorf("migrating postgres: %w", err)
			}
		}
		db, err := database.NewConnection(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		stores.Writer = repository.NewPostgresStore(db, logger)
		stores.closers = append(stores.closers, db.Close)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	stores.Records = repository.NewResilientStore(stores.Writer, cfg.Breaker, logger)
	stores.Bundles = stores.Records

	if cfg.Cache.Enabled {
		redisClient := connectRedis(ctx, cfg.Cache, logger)
		if redisClient != nil {
			stores.closers = append(stores.closers, func() { redisClient.Close() })
		}
		stores.Cache = repository.NewCachedBundleRepository(stores.Records, redisClient, repository.BundleCacheConfig{
			MemorySize: cfg.Cache.MemorySize,
			TTL:        cfg.Cache.DefaultTTL,
		}, logger)
		stores.Bundles = stores.Cache
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Store.Driver,
		"cache":  cfg.Cache.Enabled,
	}).Info("Record store ready")

	return stores, nil
}

// Close releases every resource in reverse order of acquisition.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewTriageService builds the triage core over stores.
func NewTriageService(stores *Stores, cfg domain.TriageConfig, logger *logrus.Logger) (*service.TriageService, *service.ClinicalRuleEngine) {
	engine := service.NewClinicalRuleEngine(logger)
	return service.NewTriageService(logger, stores.Records, stores.Bundles, engine, cfg), engine
}

func connectRedis(ctx context.Context, cfg domain.CacheConfig, logger *logrus.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := repository.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-process bundle cache only")
		return nil
	}
	return client
}
