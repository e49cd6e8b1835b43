package coffea

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultMetadataCacheSize is the capacity of the metadata cache a Runner
// constructs when none is injected.
const DefaultMetadataCacheSize = 100000

// MetadataCache stores populated file metadata keyed by file identity. A
// cache is never required for correctness: a miss simply triggers a metadata
// fetch. Implementations must be safe for concurrent reads.
type MetadataCache interface {
	Get(filename, treename string) (map[string]interface{}, bool)
	Set(filename, treename string, meta map[string]interface{})
}

type lruMetadataCache struct {
	cache *lru.Cache
}

// NewLRUMetadataCache builds a bounded in-process cache with recency-based
// eviction. Non-positive sizes fall back to the default capacity.
func NewLRUMetadataCache(size int) MetadataCache {
	if size < 1 {
		size = DefaultMetadataCacheSize
	}
	c, _ := lru.New(size)
	return &lruMetadataCache{cache: c}
}

func (c *lruMetadataCache) Get(filename, treename string) (map[string]interface{}, bool) {
	v, ok := c.cache.Get(fileKey{filename: filename, treename: treename})
	if !ok {
		return nil, false
	}
	return v.(map[string]interface{}), true
}

func (c *lruMetadataCache) Set(filename, treename string, meta map[string]interface{}) {
	c.cache.Add(fileKey{filename: filename, treename: treename}, meta)
}
