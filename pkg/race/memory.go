package race

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// FallbackMemory remembers URLs whose last race was won by the fallback
// transport. One instance is meant to live for the whole process and be
// shared by every connection factory; a nil *FallbackMemory remembers
// nothing.
type FallbackMemory struct {
	urls *cache.Cache
}

// NewFallbackMemory returns an empty memory. Entries expire after ttl, or
// never if ttl <= 0. Expired entries are ignored on lookup, no janitor
// goroutine runs.
func NewFallbackMemory(ttl time.Duration) *FallbackMemory {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &FallbackMemory{urls: cache.New(expiration, 0)}
}

func (m *FallbackMemory) Remember(url string) {
	if m == nil {
		return
	}
	m.urls.Set(url, struct{}{}, cache.DefaultExpiration)
}

// Won reports whether the fallback won the last race for url.
func (m *FallbackMemory) Won(url string) bool {
	if m == nil {
		return false
	}
	_, ok := m.urls.Get(url)
	return ok
}

// Forget drops url so the native transport gets its head start again.
func (m *FallbackMemory) Forget(url string) {
	if m == nil {
		return
	}
	m.urls.Delete(url)
}

// Len counts remembered URLs, expired ones included.
func (m *FallbackMemory) Len() int {
	if m == nil {
		return 0
	}
	return m.urls.ItemCount()
}
