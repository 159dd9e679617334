package growin

import (
	"context"
	"errors"
	"time"

	"github.com/growin/growin/internal/clientdata"
)

// cached serves fetch through the response cache: a fresh entry is returned
// without a request; when fetch fails, a stale entry is returned instead of the
// error. Cancelled requests never fall back.
func cached[T any](ctx context.Context, c *Client, table, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if c.cacheRepo != nil {
		if data, err := c.cacheRepo.GetIfFresh(table, key); err == nil && data != nil {
			var v T
			if err := clientdata.Unmarshal(data, &v); err == nil {
				c.log.Debug().Str("table", table).Str("key", key).Msg("Cache hit")
				return v, nil
			}
		}
	}

	v, err := fetch()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrInvalidURL) {
			if stale, ok := getStale[T](c, table, key); ok {
				c.log.Warn().
					Err(err).
					Str("table", table).
					Str("key", key).
					Msg("Backend request failed, using stale cached data")
				return stale, nil
			}
		}
		return v, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(table, key, v, ttl); err != nil {
			c.log.Warn().Err(err).Str("table", table).Str("key", key).Msg("Failed to cache response")
		}
	}
	return v, nil
}

// getStale retrieves a cached entry even if expired.
func getStale[T any](c *Client, table, key string) (T, bool) {
	var v T
	if c.cacheRepo == nil {
		return v, false
	}

	data, err := c.cacheRepo.Get(table, key)
	if err != nil || data == nil {
		return v, false
	}
	if err := clientdata.Unmarshal(data, &v); err != nil {
		return v, false
	}
	return v, true
}
