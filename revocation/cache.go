package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ErrRedisUnavailable wraps every Redis failure returned by Cache.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config controls key layout and the optional in-process layer.
type Config struct {
	Prefix string
	// LocalTTL enables an in-process copy of revoke-before values for the
	// given duration. Writes through this Cache update it immediately;
	// writes from other processes become visible after at most LocalTTL.
	LocalTTL time.Duration
}

// Cache holds per-user revoke-before timestamps and explicit per-token
// revocation markers.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
	local  *gocache.Cache
	group  singleflight.Group
}

type localEntry struct {
	at    time.Time
	found bool
}

// New returns a Cache over client.
func New(client redis.UniversalClient, cfg Config) *Cache {
	c := &Cache{
		redis:  client,
		prefix: cfg.Prefix,
	}
	if cfg.LocalTTL > 0 {
		c.local = gocache.New(cfg.LocalTTL, 2*cfg.LocalTTL)
	}
	return c
}

// RevokeBefore returns the user's revoke-before instant. found is false
// when no value was ever recorded.
func (c *Cache) RevokeBefore(ctx context.Context, userID string) (time.Time, bool, error) {
	if c.local != nil {
		if v, ok := c.local.Get(userID); ok {
			e := v.(localEntry)
			return e.at, e.found, nil
		}
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		raw, err := c.redis.Get(ctx, c.revokeBeforeKey(userID)).Result()
		if errors.Is(err, redis.Nil) {
			return localEntry{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt revoke-before value for %s", userID)
		}
		return localEntry{at: time.UnixMilli(ms), found: true}, nil
	})
	if err != nil {
		return time.Time{}, false, err
	}

	e := v.(localEntry)
	if c.local != nil {
		c.local.SetDefault(userID, e)
	}
	return e.at, e.found, nil
}

// SetRevokeBefore records at for userID with millisecond precision.
func (c *Cache) SetRevokeBefore(ctx context.Context, userID string, at time.Time) error {
	if err := c.redis.Set(ctx, c.revokeBeforeKey(userID), strconv.FormatInt(at.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if c.local != nil {
		c.local.SetDefault(userID, localEntry{at: time.UnixMilli(at.UnixMilli()), found: true})
	}
	return nil
}

// Prime bulk-loads revoke-before values in one pipeline.
func (c *Cache) Prime(ctx context.Context, entries map[string]time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for userID, at := range entries {
			pipe.Set(ctx, c.revokeBeforeKey(userID), strconv.FormatInt(at.UnixMilli(), 10), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if c.local != nil {
		c.local.Flush()
	}
	return nil
}

// MarkRevoked stores an explicit revocation marker for token. A
// non-positive ttl is a no-op: the token can no longer be used anyway.
func (c *Cache) MarkRevoked(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.redis.Set(ctx, c.revokedKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether token carries an explicit revocation marker.
func (c *Cache) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (c *Cache) revokeBeforeKey(userID string) string {
	return c.prefix + "revokeBefore:" + userID
}

// Markers are keyed by token digest to keep key size bounded.
func (c *Cache) revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + "revoked:" + hex.EncodeToString(sum[:])
}
