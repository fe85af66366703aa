package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = 30 * time.Second

// MetadataCache is a TTL cache for the results of read-only metadata queries.
// Values are stored and returned by reference, so repeated hits within the TTL
// yield the identical object.
type MetadataCache struct {
	entries *expirable.LRU[string, any]
	ttl     time.Duration
}

// NewMetadataCache builds a cache with the given TTL (DefaultCacheTTL when
// non-positive). Entry count is unbounded; TTL expiry is the only eviction.
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MetadataCache{
		entries: expirable.NewLRU[string, any](0, nil, ttl),
		ttl:     ttl,
	}
}

// TTL returns the configured entry lifetime.
func (c *MetadataCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for key if present and unexpired.
func (c *MetadataCache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

// Set stores value under key, replacing any prior entry.
func (c *MetadataCache) Set(key string, value any) {
	c.entries.Add(key, value)
}

// Invalidate removes one entry.
func (c *MetadataCache) Invalidate(key string) {
	c.entries.Remove(key)
}

// InvalidatePrefix removes every entry whose key starts with prefix. Used for
// targeted invalidation after schema-mutating statements.
func (c *MetadataCache) InvalidatePrefix(prefix string) {
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// Clear removes all entries.
func (c *MetadataCache) Clear() {
	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *MetadataCache) Len() int {
	return c.entries.Len()
}

// Cache keys are schema-qualified so same-named tables in different schemas
// never collide.

func listTablesKey(schema string) string {
	if schema == "" {
		return "list_tables"
	}
	return "list_tables:" + schema
}

func describeTableKey(schema, table string) string {
	return fmt.Sprintf("describe_table:%s.%s", schema, table)
}

func tableIndexesKey(schema, table string) string {
	return fmt.Sprintf("table_indexes:%s.%s", schema, table)
}
