package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis failures from RedisRoleStore.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RoleStore persists role membership. AddRoles must be additive and
// idempotent.
type RoleStore interface {
	Roles(ctx context.Context, userID string) ([]string, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	AddRoles(ctx context.Context, userID string, roles ...string) error
}

// RedisRoleStore keeps each user's roles in a Redis set.
type RedisRoleStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRoleStore returns a RedisRoleStore using keys "<prefix>roles:<uid>".
func NewRedisRoleStore(client redis.UniversalClient, prefix string) *RedisRoleStore {
	return &RedisRoleStore{redis: client, prefix: prefix}
}

// Roles returns the user's roles in no particular order.
func (s *RedisRoleStore) Roles(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.redis.SMembers(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return roles, nil
}

// HasRole reports membership of role.
func (s *RedisRoleStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	ok, err := s.redis.SIsMember(ctx, s.key(userID), role).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// AddRoles adds roles to the user's set.
func (s *RedisRoleStore) AddRoles(ctx context.Context, userID string, roles ...string) error {
	if len(roles) == 0 {
		return nil
	}
	members := make([]interface{}, len(roles))
	for i, r := range roles {
		members[i] = r
	}
	if err := s.redis.SAdd(ctx, s.key(userID), members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisRoleStore) key(userID string) string {
	return s.prefix + "roles:" + userID
}
