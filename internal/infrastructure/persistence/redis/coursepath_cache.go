package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillmate/skillmate-core/internal/application/query"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// CoursePathCache caches course path read models. Implements
// query.CoursePathCache and eventhandler.CacheInvalidator.
type CoursePathCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewCoursePathCache creates a course path cache. ttl <= 0 uses TTLCoursePath.
func NewCoursePathCache(cache *Cache, ttl time.Duration) *CoursePathCache {
	if ttl <= 0 {
		ttl = TTLCoursePath
	}
	return &CoursePathCache{cache: cache, ttl: ttl}
}

// Get returns the cached read model. A miss is (nil, false, nil).
func (c *CoursePathCache) Get(ctx context.Context, id string) (*query.CoursePathDTO, bool, error) {
	var dto query.CoursePathDTO
	err := c.cache.Get(ctx, CoursePathKey(id), &dto)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &dto, true, nil
}

// FillToken returns the path's invalidation counter ("0" if never invalidated).
func (c *CoursePathCache) FillToken(ctx context.Context, id string) (string, error) {
	v, err := c.cache.client.Get(ctx, CoursePathGenerationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

// SetIfUnchanged stores a read model unless the counter moved past token.
// The counter is WATCHed, so an Invalidate racing the write aborts it.
func (c *CoursePathCache) SetIfUnchanged(ctx context.Context, dto *query.CoursePathDTO, token string) (bool, error) {
	data, err := json.Marshal(dto)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	genKey := CoursePathGenerationKey(dto.ID)

	stored := false
	err = c.cache.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			current = "0"
		case err != nil:
			return err
		}
		if current != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, CoursePathKey(dto.ID), data, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

// Invalidate drops a read model and bumps its counter in one transaction.
func (c *CoursePathCache) Invalidate(ctx context.Context, id string) error {
	genKey := CoursePathGenerationKey(id)
	_, err := c.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLCoursePathGeneration)
		pipe.Del(ctx, CoursePathKey(id))
		return nil
	})
	return err
}

// IdempotencyCache maps (creator, idempotency key) to a course path id.
// Implements command.IdempotencyCache.
type IdempotencyCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewIdempotencyCache creates an idempotency cache. ttl <= 0 uses TTLIdempotency.
func NewIdempotencyCache(cache *Cache, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &IdempotencyCache{cache: cache, ttl: ttl}
}

// GetCoursePathID returns the remembered id. A miss is ("", false, nil).
func (c *IdempotencyCache) GetCoursePathID(ctx context.Context, creatorID shared.UserID, key string) (string, bool, error) {
	id, err := c.cache.GetString(ctx, IdempotencyKey(string(creatorID), key))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// PutCoursePathID remembers the id the key resolved to.
func (c *IdempotencyCache) PutCoursePathID(ctx context.Context, creatorID shared.UserID, key, coursePathID string) error {
	return c.cache.SetString(ctx, IdempotencyKey(string(creatorID), key), coursePathID, c.ttl)
}
