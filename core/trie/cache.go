package trie

import (
	"github.com/VictoriaMetrics/fastcache"
)

// NodeCache holds clean encoded nodes. Nodes are content addressed so a cached blob
// never goes stale, and the cache can be shared by every transaction of a database.
// A nil *NodeCache is valid and caches nothing.
type NodeCache struct {
	cache *fastcache.Cache
}

func NewNodeCache(maxBytes int) *NodeCache {
	if maxBytes <= 0 {
		return nil
	}
	return &NodeCache{cache: fastcache.New(maxBytes)}
}

func (c *NodeCache) Get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	blob, ok := c.cache.HasGet(nil, key)
	if ok {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
	return blob, ok
}

func (c *NodeCache) Set(key, blob []byte) {
	if c == nil {
		return
	}
	c.cache.Set(key, blob)
}

func (c *NodeCache) Reset() {
	if c == nil {
		return
	}
	c.cache.Reset()
}
