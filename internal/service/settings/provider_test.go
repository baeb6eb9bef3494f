package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgtrainer/gamification-engine/internal/cache"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
	"github.com/ecgtrainer/gamification-engine/test/mocks"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func storedConfig() *models.GamificationConfig {
	c := models.DefaultGamificationConfig()
	c.ID = 1
	return &c
}

func setupTestProvider(store Store, c cache.Cache) (*Provider, *fakeClock) {
	clock := newClock()
	p := NewProviderWithInterfaces(store, c, 5*time.Minute, logger.Nop())
	p.now = clock.now
	return p, clock
}

func TestGetCreatesDefaultsOnFirstUse(t *testing.T) {
	store := &mocks.MockConfigRepository{}
	p, _ := setupTestProvider(store, nil)

	cfg, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.XPPerECGBase)
	require.NotNil(t, store.Config, "defaults persisted")
	assert.Equal(t, uint(1), store.Config.ID)
}

func TestGetMemoizesWithinTTL(t *testing.T) {
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, clock := setupTestProvider(store, nil)
	ctx := context.Background()

	_, err := p.Get(ctx)
	require.NoError(t, err)
	clock.advance(4 * time.Minute)
	_, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.GetCalls)

	clock.advance(2 * time.Minute)
	_, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.GetCalls, "expired memo reloads")
}

func TestGetReturnsCopy(t *testing.T) {
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, nil)
	ctx := context.Background()

	cfg, err := p.Get(ctx)
	require.NoError(t, err)
	cfg.XPDifficultyMultipliers[models.DifficultyHard] = 99
	cfg.XPPerECGBase = 1000

	again, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, again.XPDifficultyMultipliers[models.DifficultyHard])
	assert.Equal(t, 10, again.XPPerECGBase)
}

func TestGetReadsSharedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	warm := &mocks.MockConfigRepository{Config: storedConfig()}
	warm.Config.XPPerECGBase = 12
	first, _ := setupTestProvider(warm, shared)
	_, err := first.Get(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(CacheKey))

	// a second process with a broken store still gets the cached copy
	cold := &mocks.MockConfigRepository{GetErr: errors.New("db down")}
	second, _ := setupTestProvider(cold, shared)
	cfg, err := second.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.XPPerECGBase)
	assert.Equal(t, 0, cold.GetCalls)
}

func TestGetDiscardsUndecodableCacheEntry(t *testing.T) {
	c := mocks.NewMockCache()
	require.NoError(t, c.Set(context.Background(), CacheKey, "{not json", time.Minute))
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, c)

	cfg, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.XPPerECGBase)
	assert.Equal(t, 1, store.GetCalls)

	raw, _ := c.Get(context.Background(), CacheKey)
	var cached models.GamificationConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cached), "rewritten with the stored config")
}

func TestGetToleratesCacheOutage(t *testing.T) {
	c := mocks.NewMockCache()
	c.Err = errors.New("redis down")
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, c)

	cfg, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.XPPerECGBase)
}

func TestGetFallsBackToLastKnownGood(t *testing.T) {
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	store.Config.XPPerECGBase = 15
	p, clock := setupTestProvider(store, nil)
	ctx := context.Background()

	_, err := p.Get(ctx)
	require.NoError(t, err)

	// a defect written behind our back
	store.Config.XPPerLevelGrowth = 0.5
	clock.advance(10 * time.Minute)

	cfg, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.1, cfg.XPPerLevelGrowth)
	assert.Equal(t, 15, cfg.XPPerECGBase)

	// and when the store is unreachable
	store.GetErr = errors.New("db down")
	clock.advance(10 * time.Minute)
	cfg, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.XPPerECGBase)
}

func TestGetInvalidWithoutHistoryUsesDefaults(t *testing.T) {
	bad := storedConfig()
	bad.MaxLevel = 0
	p, _ := setupTestProvider(&mocks.MockConfigRepository{Config: bad}, nil)

	cfg, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxLevel)
}

func TestGetStoreErrorWithoutHistory(t *testing.T) {
	p, _ := setupTestProvider(&mocks.MockConfigRepository{GetErr: errors.New("db down")}, nil)

	_, err := p.Get(context.Background())
	assert.Error(t, err)
}

func TestUpdateRejectsInvalidConfig(t *testing.T) {
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, nil)

	bad := models.DefaultGamificationConfig()
	bad.XPPerLevelGrowth = 1

	_, err := p.Update(context.Background(), &bad, "admin@example.com")
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Equal(t, 0, store.SaveCalls)
}

func TestUpdateBumpsVersionAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, shared)
	ctx := context.Background()

	before, err := p.Get(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(CacheKey))

	next := *before
	next.XPPerfectBonus = 40
	saved, err := p.Update(ctx, &next, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, saved.Version)
	assert.Equal(t, "admin@example.com", saved.UpdatedBy)
	assert.Equal(t, uint(1), saved.ID)
	assert.False(t, mr.Exists(CacheKey), "shared entry dropped")

	cfg, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.XPPerfectBonus, "read after write is fresh")
}

func TestGetDropsCacheEntryWrittenBehindUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	newShared := func() cache.Cache {
		return cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	ctx := context.Background()

	// a reader on another instance loads the row before the update lands
	reader, _ := setupTestProvider(store, newShared())
	old, err := reader.Get(ctx)
	require.NoError(t, err)
	staleRaw, err := mr.Get(CacheKey)
	require.NoError(t, err)

	writer, _ := setupTestProvider(store, newShared())
	next := *old
	next.XPPerfectBonus = 40
	saved, err := writer.Update(ctx, &next, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(saved.Version), mustGet(t, mr, VersionKey))

	// ...and writes it back to Redis after the update's delete
	require.NoError(t, mr.Set(CacheKey, staleRaw))

	fresh, _ := setupTestProvider(store, newShared())
	cfg, err := fresh.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Version, cfg.Version)
	assert.Equal(t, 40, cfg.XPPerfectBonus)

	var cached models.GamificationConfig
	require.NoError(t, json.Unmarshal([]byte(mustGet(t, mr, CacheKey)), &cached))
	assert.Equal(t, saved.Version, cached.Version, "stale entry replaced")
}

func TestGetRejectsCacheOlderThanLastGood(t *testing.T) {
	c := mocks.NewMockCache()
	store := &mocks.MockConfigRepository{Config: storedConfig()}
	p, _ := setupTestProvider(store, c)
	ctx := context.Background()

	old, err := p.Get(ctx)
	require.NoError(t, err)
	staleRaw, err := c.Get(ctx, CacheKey)
	require.NoError(t, err)

	next := *old
	next.XPPerfectBonus = 30
	saved, err := p.Update(ctx, &next, "admin")
	require.NoError(t, err)

	// VersionKey lost, e.g. Redis restarted, so only the local floor applies
	require.NoError(t, c.Del(ctx, VersionKey))
	require.NoError(t, c.Set(ctx, CacheKey, staleRaw, time.Minute))

	cfg, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Version, cfg.Version)
	assert.Equal(t, 30, cfg.XPPerfectBonus)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestUpdateCreatesWhenMissing(t *testing.T) {
	store := &mocks.MockConfigRepository{}
	p, _ := setupTestProvider(store, nil)

	cfg := models.DefaultGamificationConfig()
	saved, err := p.Update(context.Background(), &cfg, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	require.NotNil(t, store.Config)
}
