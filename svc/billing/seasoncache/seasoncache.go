// Package seasoncache is a Redis read-through cache in front of a
// billing.SeasonCatalog. Season windows and price bindings are read on every
// checkout but change rarely. Redis failures degrade to the wrapped catalog.
package seasoncache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

type Config struct {
	TTL       time.Duration `env:"REDIS_CATALOG_TTL" envDefault:"5m"`
	KeyPrefix string        `env:"REDIS_CATALOG_PREFIX" envDefault:"leaguebilling:season:"`
}

type Cache struct {
	client redis.UniversalClient
	next   billing.SeasonCatalog
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

var _ billing.SeasonCatalog = (*Cache)(nil)

type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func New(client redis.UniversalClient, next billing.SeasonCatalog, cfg Config, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		next:   next,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		log:    logger.Discard(),
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}
	if c.prefix == "" {
		c.prefix = "leaguebilling:season:"
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("seasoncache"))
	return c
}

type entry struct {
	Season  billing.LeagueSeason  `json:"season"`
	Product billing.SeasonProduct `json:"product"`
}

// Season returns the cached season and product, loading and storing them on
// a miss. Lookup errors of the wrapped catalog are never cached.
func (c *Cache) Season(ctx context.Context, seasonID int64) (*billing.LeagueSeason, *billing.SeasonProduct, error) {
	key := c.key(seasonID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if err := json.Unmarshal(raw, &e); err == nil {
			return &e.Season, &e.Product, nil
		}
		c.log.WarnContext(ctx, "dropping undecodable cache entry", logger.SeasonID(seasonID))
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "season cache read failed", logger.SeasonID(seasonID), logger.Error(err))
	}

	season, product, err := c.next.Season(ctx, seasonID)
	if err != nil {
		return nil, nil, err
	}

	if raw, err := json.Marshal(entry{Season: *season, Product: *product}); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.WarnContext(ctx, "season cache write failed", logger.SeasonID(seasonID), logger.Error(err))
		}
	}
	return season, product, nil
}

// Invalidate drops cached entries after a season or its product changed.
func (c *Cache) Invalidate(ctx context.Context, seasonIDs ...int64) error {
	if len(seasonIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(seasonIDs))
	for _, id := range seasonIDs {
		keys = append(keys, c.key(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) key(seasonID int64) string {
	return c.prefix + strconv.FormatInt(seasonID, 10)
}
