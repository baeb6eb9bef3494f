// Package settings provides the gamification config through a read-through cache.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/cache"
	prommetrics "github.com/ecgtrainer/gamification-engine/internal/metrics"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// CacheKey is the Redis key holding the serialized config.
const CacheKey = "gamification:config"

// VersionKey holds the newest config version written by Update. Cached entries
// older than it were filled by a reader that raced the update and are dropped.
const VersionKey = "gamification:config:version"

// Store is the config singleton persistence.
type Store interface {
	Get(ctx context.Context) (*models.GamificationConfig, error)
	Create(ctx context.Context, cfg *models.GamificationConfig) error
	Save(ctx context.Context, cfg *models.GamificationConfig) error
}

// Provider serves the config from a local memo, then Redis, then the store.
// A config that fails validation is never served; the last valid one is used instead.
type Provider struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time

	mu       sync.Mutex
	local    *models.GamificationConfig
	expires  time.Time
	lastGood *models.GamificationConfig
}

// NewProvider creates a new config provider. c may be nil to skip the shared cache.
func NewProvider(store *repository.ConfigRepository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Provider {
	return NewProviderWithInterfaces(store, c, ttl, log)
}

// NewProviderWithInterfaces creates a new config provider with interface dependencies (useful for testing).
func NewProviderWithInterfaces(store Store, c cache.Cache, ttl time.Duration, log *logger.Logger) *Provider {
	return &Provider{
		store: store,
		cache: c,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// Get returns the current config. The returned value is a copy the caller may modify.
func (p *Provider) Get(ctx context.Context) (*models.GamificationConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.local != nil && now.Before(p.expires) {
		prommetrics.RecordConfigRead("memory")
		return clone(p.local), nil
	}

	cfg, source, err := p.load(ctx)
	if err != nil {
		if p.lastGood != nil {
			p.log.Warn().Err(err).Msg("Config store unavailable, serving last known good config")
			prommetrics.RecordConfigFallback()
			return clone(p.lastGood), nil
		}
		return nil, err
	}

	if verr := cfg.Validate(); verr != nil {
		fallback := p.lastGood
		if fallback == nil {
			def := models.DefaultGamificationConfig()
			fallback = &def
		}
		p.log.Warn().
			Err(verr).
			Int("version", cfg.Version).
			Int("fallback_version", fallback.Version).
			Msg("Stored config is invalid, serving fallback")
		prommetrics.RecordConfigFallback()
		cfg = fallback
	} else {
		p.lastGood = cfg
	}

	p.local = cfg
	p.expires = now.Add(p.ttl)
	prommetrics.RecordConfigRead(source)

	return clone(cfg), nil
}

// load reads the config from Redis or, on a miss, from the store, creating the defaults on first use.
func (p *Provider) load(ctx context.Context) (*models.GamificationConfig, string, error) {
	if cfg := p.readCache(ctx); cfg != nil {
		return cfg, "redis", nil
	}

	cfg, err := p.store.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		def := models.DefaultGamificationConfig()
		if err := p.store.Create(ctx, &def); err != nil {
			return nil, "", fmt.Errorf("failed to create default config: %w", err)
		}
		p.log.Info().Int("version", def.Version).Msg("Created default gamification config")
		cfg = &def
	} else if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	p.writeCache(ctx, cfg)
	return cfg, "store", nil
}

func (p *Provider) readCache(ctx context.Context) *models.GamificationConfig {
	if p.cache == nil {
		return nil
	}

	raw, err := p.cache.Get(ctx, CacheKey)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to read config from cache")
		return nil
	}
	if raw == "" {
		return nil
	}

	var cfg models.GamificationConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		p.log.Warn().Err(err).Msg("Discarding undecodable cached config")
		_ = p.cache.Del(ctx, CacheKey)
		return nil
	}

	if floor := p.minVersion(ctx); cfg.Version < floor {
		p.log.Warn().
			Int("version", cfg.Version).
			Int("current_version", floor).
			Msg("Discarding stale cached config")
		_ = p.cache.Del(ctx, CacheKey)
		return nil
	}
	return &cfg
}

// minVersion is the lowest version a cached entry may carry. Caller holds p.mu.
func (p *Provider) minVersion(ctx context.Context) int {
	floor := 0
	if p.lastGood != nil {
		floor = p.lastGood.Version
	}

	raw, err := p.cache.Get(ctx, VersionKey)
	if err != nil || raw == "" {
		return floor
	}
	if v, err := strconv.Atoi(raw); err == nil && v > floor {
		floor = v
	}
	return floor
}

func (p *Provider) writeCache(ctx context.Context, cfg *models.GamificationConfig) {
	if p.cache == nil {
		return
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to encode config for cache")
		return
	}
	if err := p.cache.Set(ctx, CacheKey, string(data), p.ttl); err != nil {
		p.log.Warn().Err(err).Msg("Failed to write config to cache")
	}
}

// Update validates and stores a new config, bumping its version, then invalidates both cache layers.
func (p *Provider) Update(ctx context.Context, cfg *models.GamificationConfig, updatedBy string) (*models.GamificationConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	next := clone(cfg)
	next.UpdatedBy = updatedBy

	current, err := p.store.Get(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		next.ID = 0
		next.Version = 1
		if err := p.store.Create(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to create config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load config: %w", err)
	default:
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		if err := p.store.Save(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, VersionKey, strconv.Itoa(next.Version), 0); err != nil {
			p.log.Warn().Err(err).Msg("Failed to publish config version")
		}
	}

	p.mu.Lock()
	p.lastGood = clone(next)
	p.mu.Unlock()

	p.Invalidate(ctx)

	p.log.Info().
		Int("version", next.Version).
		Str("updated_by", updatedBy).
		Msg("Gamification config updated")

	return clone(next), nil
}

// Invalidate drops the local memo and the shared cache entry.
func (p *Provider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	p.local = nil
	p.expires = time.Time{}
	p.mu.Unlock()

	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, CacheKey); err != nil {
		p.log.Warn().Err(err).Msg("Failed to invalidate cached config")
	}
}

func clone(cfg *models.GamificationConfig) *models.GamificationConfig {
	cp := *cfg
	if cfg.XPDifficultyMultipliers != nil {
		cp.XPDifficultyMultipliers = make(models.Multipliers, len(cfg.XPDifficultyMultipliers))
		for k, v := range cfg.XPDifficultyMultipliers {
			cp.XPDifficultyMultipliers[k] = v
		}
	}
	cp.InactivityEmailDays = append([]int(nil), cfg.InactivityEmailDays...)
	return &cp
}
