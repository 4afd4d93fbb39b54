// Package identity turns bearer tokens and client supplied user ids into the
// canonical directory id every other component keys on.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rajyaabhishek/LawX-sub001/internal/directory"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
)

var ErrUnknownUser = errors.New("unknown user")

const cacheKeyPrefix = "identity:"

type Directory interface {
	Exists(ctx context.Context, id string) (bool, error)
	FindByExternalID(ctx context.Context, externalID string) (string, error)
}

// Cache stores id mappings. A miss is ("", false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Resolver maps canonical or external ids to the canonical id.
type Resolver struct {
	dir   Directory
	cache Cache
	ttl   time.Duration
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(dir Directory, cache Cache, ttl time.Duration) *Resolver {
	return &Resolver{dir: dir, cache: cache, ttl: ttl}
}

// Resolve accepts either form of user id and returns the canonical one.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrUnknownUser
	}

	key := cacheKeyPrefix + id
	if r.cache != nil {
		canonical, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("id", id).Msg("identity cache read failed")
		} else if ok {
			return canonical, nil
		}
	}

	canonical, err := r.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, canonical, r.ttl); err != nil {
			logger.Warn().Err(err).Str("id", id).Msg("identity cache write failed")
		}
	}
	return canonical, nil
}

func (r *Resolver) lookup(ctx context.Context, id string) (string, error) {
	if primitive.IsValidObjectID(id) {
		exists, err := r.dir.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check user: %w", err)
		}
		if exists {
			return id, nil
		}
	}

	canonical, err := r.dir.FindByExternalID(ctx, id)
	if errors.Is(err, directory.ErrUserNotFound) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("resolve external id: %w", err)
	}
	return canonical, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
