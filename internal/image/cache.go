package image

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds recently fetched images keyed by URL. A nil *Cache is valid and
// caches nothing.
type Cache struct {
	entries *lru.Cache[string, *ImageResult]
}

// NewCache returns a cache holding up to size images, or nil when size <= 0.
func NewCache(size int) *Cache {
	if size <= 0 {
		return nil
	}
	// lru.New only errors on non-positive size, which is guarded above.
	entries, _ := lru.New[string, *ImageResult](size)
	return &Cache{entries: entries}
}

func (c *Cache) Get(url string) (*ImageResult, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(url)
}

func (c *Cache) Add(url string, result *ImageResult) {
	if c == nil || result == nil {
		return
	}
	c.entries.Add(url, result)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
