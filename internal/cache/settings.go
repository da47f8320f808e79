package cache

import (
	"context"
	"errors"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// DefaultSettingsKey is the Redis key shared by every service replica
const DefaultSettingsKey = "delivery:schedule-settings"

// Store is the subset of Client used by SettingsCache
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// SettingsCache keeps delivery schedule settings in Redis so that an admin
// update invalidates every replica at once. Redis errors are logged and
// reported as a miss.
type SettingsCache struct {
	store  Store
	key    string
	ttl    time.Duration
	logger *logger.Logger
}

// NewSettingsCache creates a cache storing settings under DefaultSettingsKey
func NewSettingsCache(store Store, ttl time.Duration, log *logger.Logger) *SettingsCache {
	if log == nil {
		log = logger.Discard()
	}
	return &SettingsCache{store: store, key: DefaultSettingsKey, ttl: ttl, logger: log}
}

// Get returns the cached settings, reporting false on a miss or a store error
func (c *SettingsCache) Get(ctx context.Context) ([]models.DeliveryScheduleSetting, bool) {
	var settings []models.DeliveryScheduleSetting
	if err := c.store.Get(ctx, c.key, &settings); err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("Settings cache read failed", "key", c.key, "error", err)
		}
		return nil, false
	}
	if settings == nil {
		settings = []models.DeliveryScheduleSetting{}
	}
	return settings, true
}

// Set stores settings for the cache TTL
func (c *SettingsCache) Set(ctx context.Context, settings []models.DeliveryScheduleSetting) {
	if settings == nil {
		settings = []models.DeliveryScheduleSetting{}
	}
	if err := c.store.Set(ctx, c.key, settings, c.ttl); err != nil {
		c.logger.Warn("Settings cache write failed", "key", c.key, "error", err)
	}
}

// Invalidate drops the cached settings for every replica
func (c *SettingsCache) Invalidate(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.Warn("Settings cache invalidation failed", "key", c.key, "error", err)
	}
}

// OpenSettingsCache returns the shared Redis cache when redisURL is set and
// reachable, and an in-process cache otherwise. The returned func releases
// the Redis client.
func OpenSettingsCache(redisURL string, ttl time.Duration, log *logger.Logger) (delivery.SettingsCache, func()) {
	if log == nil {
		log = logger.Discard()
	}
	if redisURL != "" {
		client, err := NewRedisClient(redisURL)
		if err == nil {
			log.Info("Using Redis delivery settings cache", "ttl", ttl.String())
			return NewSettingsCache(client, ttl, log), func() { client.Close() }
		}
		log.Warn("Redis unavailable, using in-memory settings cache", "error", err)
	}
	return delivery.NewMemoryCache(ttl, nil), func() {}
}

// Health pings the backing store when it supports it
func (c *SettingsCache) Health() map[string]interface{} {
	health := map[string]interface{}{"backend": "redis", "status": "healthy"}
	if hc, ok := c.store.(interface{ HealthCheck() error }); ok {
		if err := hc.HealthCheck(); err != nil {
			health["status"] = "unhealthy"
			health["error"] = err.Error()
		}
	}
	return health
}
