package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ironsheep/image-pipeline/pkg/governor"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Cache holds decoded inputs so repeated executions over the same buffer or
// file skip decoding.
//
// The cache is bounded three ways: by entry count, by the memory taken by
// decoded pixels, and by the number of entries that came from files. The
// least recently used entry is evicted first when any bound is exceeded.
// Setting the item or memory bound to zero disables the cache and empties it.
//
// Cached sources are shared between executions and must never be mutated;
// every operation produces a new image.
//
// Cache is safe for concurrent use and implements governor.CacheBackend.
//
// # Example Usage
//
//	cache := engine.NewCache(governor.DefaultCacheLimits())
//	eng := engine.New(engine.WithCache(cache))
//	governor.Default().UseCache(cache)
type Cache struct {
	mu     sync.Mutex
	limits governor.CacheLimits
	lru    *simplelru.LRU[string, *cacheEntry]

	bytes     int64
	highBytes int64
	files     int
}

type cacheEntry struct {
	src  *source
	size int64
	file bool
}

// NewCache creates an empty cache with the given limits.
func NewCache(limits governor.CacheLimits) *Cache {
	c := &Cache{limits: limits}
	l, err := simplelru.NewLRU[string, *cacheEntry](lruSize(limits), c.onEvict)
	if err != nil {
		// lruSize never returns less than one
		panic(err)
	}
	c.lru = l
	return c
}

func lruSize(limits governor.CacheLimits) int {
	if limits.Items < 1 {
		return 1
	}
	return limits.Items
}

// onEvict runs with c.mu held whenever an entry leaves the LRU.
func (c *Cache) onEvict(_ string, entry *cacheEntry) {
	c.bytes -= entry.size
	if entry.file {
		c.files--
	}
}

func (c *Cache) enabled() bool {
	return c.limits.Items > 0 && c.limits.Memory > 0
}

// Get returns the cached source for key and marks it recently used.
func (c *Cache) Get(key string) (*source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return entry.src, true
}

// Put stores src under key. Entries larger than the memory bound are not kept.
func (c *Cache) Put(key string, src *source, file bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled() || (file && c.limits.Files == 0) {
		return
	}
	size := src.size()
	if size > c.maxBytes() {
		return
	}
	c.lru.Remove(key)
	c.bytes += size
	if file {
		c.files++
	}
	c.lru.Add(key, &cacheEntry{src: src, size: size, file: file})
	if c.bytes > c.highBytes {
		c.highBytes = c.bytes
	}
	c.trimLocked()
}

// Evict removes one entry. Unknown keys are ignored.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// SetLimits resizes the cache, evicting what no longer fits.
func (c *Cache) SetLimits(limits governor.CacheLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = limits
	if !c.enabled() {
		c.lru.Purge()
		return
	}
	c.lru.Resize(lruSize(limits))
	c.trimLocked()
}

// Stats reports usage. Memory figures are in megabytes.
func (c *Cache) Stats() governor.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return governor.CacheStats{
		Memory: governor.Usage{Current: int(c.bytes >> 20), High: int(c.highBytes >> 20), Max: c.limits.Memory},
		Files:  governor.Usage{Current: c.files, Max: c.limits.Files},
		Items:  governor.Usage{Current: c.lru.Len(), Max: c.limits.Items},
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) maxBytes() int64 { return int64(c.limits.Memory) << 20 }

// trimLocked enforces the memory and file bounds; the LRU enforces the item
// bound itself.
func (c *Cache) trimLocked() {
	if c.files > c.limits.Files {
		// evict the oldest file entries first
		for _, key := range c.lru.Keys() {
			if c.files <= c.limits.Files {
				break
			}
			if entry, ok := c.lru.Peek(key); ok && entry.file {
				c.lru.Remove(key)
			}
		}
	}
	for c.lru.Len() > 0 && c.bytes > c.maxBytes() {
		c.lru.RemoveOldest()
	}
}

func bufferKey(data []byte, in model.Input) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("buf:%s|%d|%d", hex.EncodeToString(sum[:]), in.Page, in.Pages)
}

func fileKey(path string, fi os.FileInfo, in model.Input) string {
	return fmt.Sprintf("file:%s|%d|%d|%d|%d", path, fi.Size(), fi.ModTime().UnixNano(), in.Page, in.Pages)
}
