package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisCacheKey = "economy:config"

// CachedProvider fronts a Provider with an in-process cache and an optional
// Redis cache shared across replicas. A snapshot is never served past its TTL
// measured from when it was read from the source, whichever layer holds it:
// when the source fails after expiry, Current returns ErrConfigUnavailable.
// Lookups run outside the mutex, so readers never queue behind a slow fetch.
type CachedProvider struct {
	source Provider
	redis  redis.Cmdable
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	cached    *Config
	fetchedAt time.Time
}

// cachedSnapshot is the Redis payload; FetchedAt travels with the config so
// replicas age it from the original source read.
type cachedSnapshot struct {
	FetchedAt time.Time `json:"fetched_at"`
	Config    *Config   `json:"config"`
}

func NewCachedProvider(source Provider, rdb redis.Cmdable, ttl time.Duration) *CachedProvider {
	return &CachedProvider{source: source, redis: rdb, ttl: ttl, now: time.Now}
}

func (p *CachedProvider) Current(ctx context.Context) (*Config, error) {
	now := p.now()
	if cfg := p.local(now); cfg != nil {
		return cfg, nil
	}

	if snap := p.fromRedis(ctx, now); snap != nil {
		p.store(snap.Config, snap.FetchedAt)
		return snap.Config, nil
	}

	cfg, err := p.source.Current(ctx)
	if err != nil {
		p.mu.Lock()
		if p.cached != nil && now.Sub(p.fetchedAt) >= p.ttl {
			p.cached = nil
		}
		p.mu.Unlock()
		zap.L().Error("economy config unavailable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigUnavailable, err)
	}
	p.store(cfg, now)
	p.toRedis(ctx, cachedSnapshot{FetchedAt: now, Config: cfg})
	return cfg, nil
}

// Invalidate drops both cache layers so the next call hits the source.
func (p *CachedProvider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	p.cached = nil
	p.fetchedAt = time.Time{}
	p.mu.Unlock()
	if p.redis != nil {
		if err := p.redis.Del(ctx, redisCacheKey).Err(); err != nil {
			zap.L().Warn("redis economy config invalidate failed", zap.Error(err))
		}
	}
}

func (p *CachedProvider) local(now time.Time) *Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && now.Sub(p.fetchedAt) < p.ttl {
		return p.cached
	}
	return nil
}

// store keeps the newest snapshot when concurrent fetches race.
func (p *CachedProvider) store(cfg *Config, fetchedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil || !fetchedAt.Before(p.fetchedAt) {
		p.cached, p.fetchedAt = cfg, fetchedAt
	}
}

func (p *CachedProvider) fromRedis(ctx context.Context, now time.Time) *cachedSnapshot {
	if p.redis == nil {
		return nil
	}
	val, err := p.redis.Get(ctx, redisCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis economy config lookup failed", zap.Error(err))
		}
		return nil
	}
	var snap cachedSnapshot
	if err := json.Unmarshal(val, &snap); err != nil || snap.Config == nil {
		zap.L().Warn("decode cached economy config", zap.Error(err))
		return nil
	}
	if now.Sub(snap.FetchedAt) >= p.ttl {
		return nil
	}
	if err := snap.Config.Validate(); err != nil {
		zap.L().Warn("cached economy config invalid", zap.Error(err))
		return nil
	}
	return &snap
}

func (p *CachedProvider) toRedis(ctx context.Context, snap cachedSnapshot) {
	if p.redis == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		zap.L().Warn("marshal economy config", zap.Error(err))
		return
	}
	if err := p.redis.Set(ctx, redisCacheKey, payload, p.ttl).Err(); err != nil {
		zap.L().Warn("redis economy config cache set failed", zap.Error(err))
	}
}
