package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinical-triage-server/internal/database/dbtest"
	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

func TestCachedBundleRepository_MemoryTier(t *testing.T) {
	ctx := context.Background()
	bundle := &domain.ClinicalBundle{MRN: "MRN1001", PatientID: 1}

	next := new(MockRecordStore)
	next.On("GetByMRN", ctx, "MRN1001").Return(bundle, nil).Once()
	next.On("GetByMRN", ctx, "MRN9999").Return(nil, domain.ErrBundleNotFound)

	cache := NewCachedBundleRepository(next, nil, BundleCacheConfig{MemorySize: 10, TTL: time.Minute}, newTestLogger())

	t.Run("Hit_After_First_Read", func(t *testing.T) {
		first, err := cache.GetByMRN(ctx, "MRN1001")
		require.NoError(t, err)
		second, err := cache.GetByMRN(ctx, "MRN1001")
		require.NoError(t, err)

		assert.Same(t, first, second)
		stats := cache.Stats()
		assert.Equal(t, int64(1), stats.MemoryHits)
		assert.Equal(t, int64(1), stats.StoreReads)
	})

	t.Run("Absence_Is_Not_Cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := cache.GetByMRN(ctx, "MRN9999")
			assert.True(t, errors.Is(err, domain.ErrBundleNotFound))
		}
		next.AssertNumberOfCalls(t, "GetByMRN", 3)
	})

	t.Run("Invalidate", func(t *testing.T) {
		next.On("GetByMRN", ctx, "MRN1001").Return(bundle, nil).Once()

		require.NoError(t, cache.Invalidate(ctx, "MRN1001"))
		_, err := cache.GetByMRN(ctx, "MRN1001")
		require.NoError(t, err)
		assert.Equal(t, int64(4), cache.Stats().StoreReads)
	})
}

func TestCachedBundleRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	next := new(MockRecordStore)
	next.On("GetByMRN", ctx, "MRN1001").Return(&domain.ClinicalBundle{MRN: "MRN1001"}, nil)

	cache := NewCachedBundleRepository(next, nil, BundleCacheConfig{MemorySize: 10, TTL: 20 * time.Millisecond}, newTestLogger())

	_, err := cache.GetByMRN(ctx, "MRN1001")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = cache.GetByMRN(ctx, "MRN1001")
	require.NoError(t, err)

	next.AssertNumberOfCalls(t, "GetByMRN", 2)
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	dbtest.SkipUnlessIntegration(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, domain.CacheConfig{RedisURL: fmt.Sprintf("redis://%s/0", endpoint)})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCachedBundleRepository_RedisTier(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	bundle, err := fhir.DecodeBundle(loadBundleFixture(t))
	require.NoError(t, err)
	bundle.PatientID = 1

	next := new(MockRecordStore)
	next.On("GetByMRN", ctx, "MRN1001").Return(bundle, nil).Once()

	// Populate Redis through one cache instance
	writer := NewCachedBundleRepository(next, client, BundleCacheConfig{TTL: time.Minute}, newTestLogger())
	_, err = writer.GetByMRN(ctx, "MRN1001")
	require.NoError(t, err)

	// A second instance with a cold memory tier reads from Redis
	reader := NewCachedBundleRepository(next, client, BundleCacheConfig{TTL: time.Minute}, newTestLogger())
	cached, err := reader.GetByMRN(ctx, "MRN1001")
	require.NoError(t, err)

	assert.Equal(t, int64(1), reader.Stats().RedisHits)
	assert.Equal(t, int64(1), cached.PatientID)
	assert.Len(t, cached.Entries, len(bundle.Entries))
	next.AssertNumberOfCalls(t, "GetByMRN", 1)

	require.NoError(t, reader.Invalidate(ctx, "MRN1001"))
	_, err = client.Get(ctx, bundleKeyPrefix+"MRN1001").Result()
	assert.True(t, errors.Is(err, redis.Nil))
}
