package common

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"tripbuilder/crmsync/internal/metrics"
)

// CacheService is the in-process cache, used when CACHE_BACKEND=memory
type CacheService struct {
	cache   *cache.Cache
	metrics *metrics.MetricsRegistry
}

// Ensure CacheService implements CacheInterface
var _ CacheInterface = (*CacheService)(nil)

func NewCacheService(defaultExpiration, cleanUpInterval time.Duration, m *metrics.MetricsRegistry) *CacheService {
	return &CacheService{
		cache:   cache.New(defaultExpiration, cleanUpInterval),
		metrics: m,
	}
}

func (cs *CacheService) Set(key string, value string, ttl time.Duration) {
	cs.cache.Set(key, value, ttl)
}

func (cs *CacheService) Get(key string) (string, bool) {
	val, found := cs.cache.Get(key)
	cs.metrics.CacheHit(keyPattern(key), found)
	if !found {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

func (cs *CacheService) Delete(key string) {
	cs.cache.Delete(key)
}

func (cs *CacheService) GetOrSet(key string, ttl time.Duration, loader func() (string, error)) (string, error) {
	return getOrSet(cs, key, ttl, loader)
}

// Close is a no-op for the in-memory cache
func (cs *CacheService) Close() error {
	return nil
}

// keyPattern keeps metric label cardinality bounded: "CONTACT_EMAIL_a@b.c" -> "CONTACT_EMAIL_".
func keyPattern(key string) string {
	if i := strings.LastIndex(key, "_"); i >= 0 {
		return key[:i+1]
	}
	return "other"
}
