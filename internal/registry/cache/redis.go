// Package cache keeps a short-lived Redis copy of name records and reverse
// entries for the read endpoints.
//
// Every entry has a generation counter next to it. Invalidate bumps the
// counter before deleting the entry, and a fill only lands if the counter
// still holds the value the reader saw on its miss. A read that loaded the
// store before a mutation committed can therefore never write its stale copy
// back after that mutation's invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
)

const (
	recordKeyPrefix = "namereg:record:"
	ownedKeyPrefix  = "namereg:owned:"

	defaultTTL = 30 * time.Second
	// generationTTL outlives any read that could still present a generation.
	generationTTL = 24 * time.Hour
)

// fillScript sets KEYS[1] to ARGV[2] for ARGV[3] milliseconds only while
// KEYS[2] still holds generation ARGV[1]. A missing generation reads as 0.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache is a Redis-backed read cache. Entries expire after the TTL,
// which bounds staleness only when an invalidation itself fails.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a RedisCache.
type Option func(*RedisCache)

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRedis constructs a Redis-backed record cache.
func NewRedis(client *redis.Client, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type cachedRecord struct {
	Name      string          `json:"name"`
	Owner     domain.Identity `json:"owner"`
	ExpiresAt int64           `json:"expires_at"`
}

// GetRecord returns the cached record for name. On a miss it returns
// store.ErrNotFound and the generation PutRecord must be given.
func (c *RedisCache) GetRecord(ctx context.Context, name string) (*models.Record, uint64, error) {
	raw, gen, err := c.get(ctx, recordKey(name))
	if err != nil {
		return nil, gen, err
	}
	var cr cachedRecord
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		return nil, 0, fmt.Errorf("decode cached record: %w", err)
	}
	return &models.Record{
		Name:      cr.Name,
		Owner:     cr.Owner,
		ExpiresAt: time.Unix(cr.ExpiresAt, 0).UTC(),
	}, gen, nil
}

// PutRecord caches rec unless name was invalidated after generation gen was read.
func (c *RedisCache) PutRecord(ctx context.Context, rec *models.Record, gen uint64) error {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(cachedRecord{
		Name:      rec.Name,
		Owner:     rec.Owner,
		ExpiresAt: models.Unix(rec.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}
	return c.fill(ctx, recordKey(rec.Name), string(raw), gen)
}

// GetOwnedName returns the cached reverse entry, which may be "". On a miss
// it returns store.ErrNotFound and the generation PutOwnedName must be given.
func (c *RedisCache) GetOwnedName(ctx context.Context, identity domain.Identity) (string, uint64, error) {
	return c.get(ctx, ownedKey(identity))
}

// PutOwnedName caches identity's reverse entry unless it was invalidated
// after generation gen was read.
func (c *RedisCache) PutOwnedName(ctx context.Context, identity domain.Identity, name string, gen uint64) error {
	return c.fill(ctx, ownedKey(identity), name, gen)
}

// Invalidate drops the entries for names and identities in one round trip.
// Each generation is bumped before its entry is deleted, so a fill racing
// the delete is refused either way.
func (c *RedisCache) Invalidate(ctx context.Context, names []string, identities []domain.Identity) error {
	keys := make([]string, 0, len(names)+len(identities))
	for _, name := range names {
		keys = append(keys, recordKey(name))
	}
	for _, id := range identities {
		keys = append(keys, ownedKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), generationTTL)
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached entries: %w", err)
	}
	return nil
}

// get reads key and its generation together.
func (c *RedisCache) get(ctx context.Context, key string) (string, uint64, error) {
	vals, err := c.client.MGet(ctx, key, generationKey(key)).Result()
	if err != nil {
		return "", 0, fmt.Errorf("get cached entry: %w", err)
	}
	gen, err := parseGeneration(vals[1])
	if err != nil {
		return "", 0, err
	}
	if vals[0] == nil {
		return "", gen, store.ErrNotFound
	}
	value, ok := vals[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected cached value type %T", vals[0])
	}
	return value, gen, nil
}

func (c *RedisCache) fill(ctx context.Context, key, value string, gen uint64) error {
	err := fillScript.Run(ctx, c.client,
		[]string{key, generationKey(key)},
		strconv.FormatUint(gen, 10), value, c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("fill cached entry: %w", err)
	}
	return nil
}

func parseGeneration(v any) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected generation type %T", v)
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache generation: %w", err)
	}
	return gen, nil
}

// Keys carry a hash tag so an entry and its generation share a cluster slot.
func recordKey(name string) string {
	return recordKeyPrefix + "{" + name + "}"
}

func ownedKey(identity domain.Identity) string {
	return ownedKeyPrefix + "{" + identity.String() + "}"
}

func generationKey(key string) string {
	return key + ":gen"
}
