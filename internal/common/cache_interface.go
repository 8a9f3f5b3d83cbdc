package common

import "time"

// CacheInterface is the lookup cache used for contact ids by email and first
// stage ids by pipeline. Values are plain strings so the memory and Redis
// backends behave the same.
type CacheInterface interface {
	// Set stores a value with the given time to live
	Set(key string, value string, ttl time.Duration)

	// Get returns the value and true if found
	Get(key string) (string, bool)

	Delete(key string)

	// GetOrSet returns the cached value, or loads and stores it. An empty
	// loaded value is returned but not cached.
	GetOrSet(key string, ttl time.Duration, loader func() (string, error)) (string, error)

	// Close closes any underlying connections (for Redis, etc.)
	Close() error
}

func getOrSet(c CacheInterface, key string, ttl time.Duration, loader func() (string, error)) (string, error) {
	if val, found := c.Get(key); found {
		return val, nil
	}

	val, err := loader()
	if err != nil {
		return "", err
	}
	if val != "" {
		c.Set(key, val, ttl)
	}
	return val, nil
}
