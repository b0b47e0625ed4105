package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

const aliasKeyPrefix = "link:alias:"

// LinkSource is the subset of the link store the resolver reads from.
type LinkSource interface {
	FindByAlias(ctx context.Context, alias string) (*models.LinkRecord, error)
	FindByShortURL(ctx context.Context, shortURL string) (*models.LinkRecord, error)
	FindByFuzzyContains(ctx context.Context, token string, limit int) ([]models.LinkRecord, error)
}

// CachedLinks serves alias lookups from the cache and falls back to the
// source on a miss. Cache failures never fail a lookup. Cached records carry
// the click count at fill time; callers needing the live count take it from
// the increment.
type CachedLinks struct {
	src   LinkSource
	cache *Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedLinks(src LinkSource, cache *Cache, ttl time.Duration, log *zap.Logger) *CachedLinks {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedLinks{src: src, cache: cache, ttl: ttl, log: log}
}

func (c *CachedLinks) FindByAlias(ctx context.Context, alias string) (*models.LinkRecord, error) {
	key := aliasKeyPrefix + alias

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("link cache read failed", zap.String("alias", alias), zap.Error(err))
	}
	if found {
		var link models.LinkRecord
		if err := json.Unmarshal([]byte(raw), &link); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &link, nil
		}
		c.log.Warn("dropping malformed cache entry", zap.String("alias", alias))
		_ = c.cache.Delete(ctx, key)
	}

	if err == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	link, err := c.src.FindByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(link); err == nil {
		if err := c.cache.Set(ctx, key, string(payload), c.ttl); err != nil {
			c.log.Warn("link cache write failed", zap.String("alias", alias), zap.Error(err))
		}
	}
	return link, nil
}

func (c *CachedLinks) FindByShortURL(ctx context.Context, shortURL string) (*models.LinkRecord, error) {
	return c.src.FindByShortURL(ctx, shortURL)
}

func (c *CachedLinks) FindByFuzzyContains(ctx context.Context, token string, limit int) ([]models.LinkRecord, error) {
	return c.src.FindByFuzzyContains(ctx, token, limit)
}
