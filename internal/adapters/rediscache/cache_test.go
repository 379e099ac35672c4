package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"croaudit/internal/adapters/memory"
	"croaudit/internal/domain"
	"croaudit/internal/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := NewClient(Options{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type countingRepo struct {
	*memory.Reports
	gets int
}

func (c *countingRepo) Get(ctx context.Context, auditID string) (domain.AuditReport, error) {
	c.gets++
	return c.Reports.Get(ctx, auditID)
}

func TestReports_ReadThrough(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	backing := &countingRepo{Reports: memory.NewReports()}
	cache := NewReports(backing, client, time.Hour, logger.NewTestLogger(t))

	require.NoError(t, Ping(ctx, client))
	require.NoError(t, backing.Reports.Save(ctx, "scan-1", domain.AuditReport{AuditID: "a1", ConfidenceScore: 87}))

	first, err := cache.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 87, first.ConfidenceScore)
	assert.True(t, mr.Exists(keyPrefix+"a1"))

	second, err := cache.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.gets)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(keyPrefix+"a1"))
	_, err = cache.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.gets)
}

func TestReports_SaveWarmsCache(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	cache := NewReports(memory.NewReports(), client, time.Minute, nil)

	require.NoError(t, cache.Save(ctx, "scan-1", domain.AuditReport{AuditID: "a2"}))
	assert.True(t, mr.Exists(keyPrefix+"a2"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"a2"))
}

func TestReports_MissIsNotFound(t *testing.T) {
	_, client := setupRedis(t)
	cache := NewReports(memory.NewReports(), client, time.Minute, nil)

	_, err := cache.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReports_CorruptEntryFallsThrough(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	backing := memory.NewReports()
	require.NoError(t, backing.Save(ctx, "scan-1", domain.AuditReport{AuditID: "a3", ConfidenceScore: 90}))
	require.NoError(t, mr.Set(keyPrefix+"a3", "{not json"))

	cache := NewReports(backing, client, time.Minute, logger.NewTestLogger(t))
	rep, err := cache.Get(ctx, "a3")
	require.NoError(t, err)
	assert.Equal(t, 90, rep.ConfidenceScore)
}

func TestReports_RedisDownFallsThrough(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	backing := memory.NewReports()
	require.NoError(t, backing.Save(ctx, "scan-1", domain.AuditReport{AuditID: "a4"}))

	cache := NewReports(backing, client, time.Minute, logger.NewTestLogger(t))
	mr.Close()

	rep, err := cache.Get(ctx, "a4")
	require.NoError(t, err)
	assert.Equal(t, "a4", rep.AuditID)
}
