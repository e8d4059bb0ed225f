package governor

import (
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// CacheLimits bounds the decoded input cache. Memory is in megabytes.
type CacheLimits struct {
	Memory int `json:"memory"`
	Files  int `json:"files"`
	Items  int `json:"items"`
}

// DefaultCacheLimits returns 50MB, 20 files and 100 items.
func DefaultCacheLimits() CacheLimits {
	return CacheLimits{Memory: 50, Files: 20, Items: 100}
}

func (l CacheLimits) validate() error {
	if l.Memory < 0 {
		return imgerr.Invalid("memory", "integer greater than or equal to 0", l.Memory)
	}
	if l.Files < 0 {
		return imgerr.Invalid("files", "integer greater than or equal to 0", l.Files)
	}
	if l.Items < 0 {
		return imgerr.Invalid("items", "integer greater than or equal to 0", l.Items)
	}
	return nil
}

// Usage is one cache dimension. High is the peak since process start.
type Usage struct {
	Current int `json:"current"`
	High    int `json:"high,omitempty"`
	Max     int `json:"max"`
}

// CacheStats reports cache usage against its limits. Memory is in megabytes.
type CacheStats struct {
	Memory Usage `json:"memory"`
	Files  Usage `json:"files"`
	Items  Usage `json:"items"`
}

// CacheBackend is the cache the engine maintains.
type CacheBackend interface {
	// SetLimits resizes the cache, evicting entries beyond the new limits.
	// Zero limits empty and disable it.
	SetLimits(CacheLimits)
	Stats() CacheStats
}

// UseCache attaches the backend and applies the current limits to it.
func (g *Governor) UseCache(b CacheBackend) {
	g.mu.Lock()
	g.cache = b
	limits := g.effectiveCacheLocked()
	g.mu.Unlock()
	if b != nil {
		b.SetLimits(limits)
	}
}

func (g *Governor) effectiveCacheLocked() CacheLimits {
	if !g.cacheEnabled {
		return CacheLimits{}
	}
	return g.cacheLimits
}

// Cache returns current cache usage.
func (g *Governor) Cache() CacheStats {
	g.mu.Lock()
	b := g.cache
	limits := g.effectiveCacheLocked()
	g.mu.Unlock()
	if b == nil {
		return CacheStats{
			Memory: Usage{Max: limits.Memory},
			Files:  Usage{Max: limits.Files},
			Items:  Usage{Max: limits.Items},
		}
	}
	return b.Stats()
}

// SetCache sets explicit limits, enables the cache and returns the resulting usage.
func (g *Governor) SetCache(limits CacheLimits) (CacheStats, error) {
	if err := limits.validate(); err != nil {
		return CacheStats{}, err
	}
	g.mu.Lock()
	g.cacheLimits = limits
	g.cacheEnabled = true
	b := g.cache
	g.mu.Unlock()
	if b != nil {
		b.SetLimits(limits)
	}
	g.log.WithField("limits", limits).Debug("governor cache limits changed")
	return g.Cache(), nil
}

// SetCacheEnabled switches the cache off, or back on with default limits.
func (g *Governor) SetCacheEnabled(on bool) CacheStats {
	g.mu.Lock()
	g.cacheEnabled = on
	if on {
		g.cacheLimits = DefaultCacheLimits()
	}
	b := g.cache
	limits := g.effectiveCacheLocked()
	g.mu.Unlock()
	if b != nil {
		b.SetLimits(limits)
	}
	return g.Cache()
}
