package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nanlei/chatvault/internal/domain"
)

const (
	queryCachePrefix = "query:"
	queryCacheTTL    = 5 * time.Minute
)

// QueryCache caches shaped search responses in Redis. Entries are scoped by
// session so an import into one session only invalidates that session.
type QueryCache struct {
	client *Client
}

// NewQueryCache creates a new query cache
func NewQueryCache(client *Client) *QueryCache {
	return &QueryCache{client: client}
}

func cacheKey(sessionID, opKey string) string {
	return fmt.Sprintf("%s%s:%s", queryCachePrefix, sessionID, opKey)
}

// GetSearch retrieves a cached search result; a miss returns (nil, nil)
func (c *QueryCache) GetSearch(ctx context.Context, sessionID, opKey string) (*domain.SearchResult, error) {
	data, err := c.client.rdb.Get(ctx, cacheKey(sessionID, opKey)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var result domain.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search result: %w", err)
	}
	return &result, nil
}

// SetSearch caches a search result
func (c *QueryCache) SetSearch(ctx context.Context, sessionID, opKey string, result *domain.SearchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}
	return c.client.rdb.Set(ctx, cacheKey(sessionID, opKey), data, queryCacheTTL).Err()
}

// InvalidateSession removes every cached entry for a session
func (c *QueryCache) InvalidateSession(ctx context.Context, sessionID string) (int64, error) {
	return c.deleteByPattern(ctx, queryCachePrefix+sessionID+":*")
}

// FlushAll removes all cached query results
func (c *QueryCache) FlushAll(ctx context.Context) (int64, error) {
	return c.deleteByPattern(ctx, queryCachePrefix+"*")
}

func (c *QueryCache) deleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
