package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// DefaultSettingsTTL bounds how long settings are served from cache
const DefaultSettingsTTL = 5 * time.Minute

// ErrSettingNotFound means no active setting exists for a subscription type
var ErrSettingNotFound = errors.New("delivery: no active schedule setting")

// Policy is the delivery cadence for one subscription type.
// GapDays counts rest days between two deliveries.
type Policy struct {
	GapDays int  `json:"gap_days"`
	IsDaily bool `json:"is_daily"`
}

// Step returns the number of days between two consecutive deliveries
func (p Policy) Step() int {
	if p.IsDaily || p.GapDays < 0 {
		return 1
	}
	return p.GapDays + 1
}

// DefaultPolicy is the built-in cadence: fruit bowls daily, everything else with two rest days
func DefaultPolicy(subscriptionType string) Policy {
	if subscriptionType == models.SubscriptionTypeFruitBowls {
		return Policy{IsDaily: true}
	}
	return Policy{GapDays: 2}
}

// Fallbacks maps subscription types to the policy used when settings cannot be read
type Fallbacks map[string]Policy

// FallbacksFromSettings builds fallbacks from setting rows, first active row per type wins
func FallbacksFromSettings(settings []models.DeliveryScheduleSetting) Fallbacks {
	f := make(Fallbacks, len(settings))
	for _, s := range settings {
		if !s.IsActive {
			continue
		}
		if _, exists := f[s.SubscriptionType]; exists {
			continue
		}
		f[s.SubscriptionType] = Policy{GapDays: s.DeliveryGapDays, IsDaily: s.IsDaily}
	}
	return f
}

// For returns the fallback for subscriptionType, or DefaultPolicy when none is configured
func (f Fallbacks) For(subscriptionType string) Policy {
	if p, ok := f[subscriptionType]; ok {
		return p
	}
	return DefaultPolicy(subscriptionType)
}

// SettingsSource reads active delivery schedule settings from the store
type SettingsSource interface {
	ListActiveSettings(ctx context.Context) ([]models.DeliveryScheduleSetting, error)
}

// SettingsCache holds the last settings read
type SettingsCache interface {
	Get(ctx context.Context) ([]models.DeliveryScheduleSetting, bool)
	Set(ctx context.Context, settings []models.DeliveryScheduleSetting)
	Invalidate(ctx context.Context)
}

// MemoryCache is an in-process SettingsCache with a fixed TTL.
// Concurrent refreshes are allowed; the last Set wins.
type MemoryCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	value     []models.DeliveryScheduleSetting
	fetchedAt time.Time
}

// NewMemoryCache creates a MemoryCache. Non-positive ttl uses DefaultSettingsTTL.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now}
}

// Get returns the cached settings while they are fresh
func (c *MemoryCache) Get(ctx context.Context) ([]models.DeliveryScheduleSetting, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cloneSettings(c.value), true
}

// Set stores settings and stamps the fetch time
func (c *MemoryCache) Set(ctx context.Context, settings []models.DeliveryScheduleSetting) {
	cloned := cloneSettings(settings)
	if cloned == nil {
		cloned = []models.DeliveryScheduleSetting{}
	}
	c.mu.Lock()
	c.value = cloned
	c.fetchedAt = c.now()
	c.mu.Unlock()
}

// Invalidate drops the cached value
func (c *MemoryCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.value = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func cloneSettings(in []models.DeliveryScheduleSetting) []models.DeliveryScheduleSetting {
	if in == nil {
		return nil
	}
	out := make([]models.DeliveryScheduleSetting, len(in))
	copy(out, in)
	return out
}

// SettingsProvider resolves a subscription type to its configured Policy
type SettingsProvider struct {
	source  SettingsSource
	cache   SettingsCache
	metrics Recorder
}

// NewSettingsProvider creates a provider. A nil cache disables caching.
func NewSettingsProvider(source SettingsSource, cache SettingsCache, metrics Recorder) *SettingsProvider {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &SettingsProvider{source: source, cache: cache, metrics: metrics}
}

// Lookup returns the policy of the first active setting for subscriptionType.
// Read failures and missing rows are returned as errors; applying a fallback
// is up to the caller.
func (p *SettingsProvider) Lookup(ctx context.Context, subscriptionType string) (Policy, error) {
	settings, err := p.settings(ctx)
	if err != nil {
		return Policy{}, err
	}

	for _, s := range settings {
		if s.IsActive && s.SubscriptionType == subscriptionType {
			return Policy{GapDays: s.DeliveryGapDays, IsDaily: s.IsDaily}, nil
		}
	}

	return Policy{}, fmt.Errorf("%w for %q", ErrSettingNotFound, subscriptionType)
}

// Invalidate forces the next Lookup to read from the source
func (p *SettingsProvider) Invalidate(ctx context.Context) {
	if p.cache != nil {
		p.cache.Invalidate(ctx)
	}
}

func (p *SettingsProvider) settings(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx); ok {
			p.metrics.SettingsCacheHit()
			return cached, nil
		}
		p.metrics.SettingsCacheMiss()
	}

	if p.source == nil {
		return nil, errors.New("delivery: no settings source configured")
	}

	settings, err := p.source.ListActiveSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery schedule settings: %w", err)
	}

	if p.cache != nil {
		p.cache.Set(ctx, settings)
	}
	return settings, nil
}
