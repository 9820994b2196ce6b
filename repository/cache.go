package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ModelListCachePrefix = "models:v:"
	ModelCacheVersionKey = "models:version"
)

// ErrLocked is returned by Locker.Acquire when another holder owns the key.
var ErrLocked = errors.New("lock is held")

// CatalogCache caches catalog reads. Misses and backend failures both report
// ok=false so callers fall through to Mongo.
type CatalogCache interface {
	GetModels(ctx context.Context) ([]models.HomeModel, bool)
	SetModels(ctx context.Context, list []models.HomeModel)
	GetModel(ctx context.Context, slug string) (*models.HomeModel, bool)
	SetModel(ctx context.Context, m *models.HomeModel)
	// Invalidate drops every cached catalog entry by bumping the version.
	Invalidate(ctx context.Context) error
}

// Locker provides short-lived mutual exclusion across API instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisCatalogCache keeps catalog entries under a version number so that a
// single INCR invalidates all of them.
type RedisCatalogCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCatalogCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCatalogCache {
	return &RedisCatalogCache{redis: client, ttl: ttl, logger: logger}
}

func (c *RedisCatalogCache) GetModels(ctx context.Context) ([]models.HomeModel, bool) {
	var out []models.HomeModel
	if !c.get(ctx, "list", &out) {
		return nil, false
	}
	return out, true
}

func (c *RedisCatalogCache) SetModels(ctx context.Context, list []models.HomeModel) {
	c.set(ctx, "list", list)
}

func (c *RedisCatalogCache) GetModel(ctx context.Context, slug string) (*models.HomeModel, bool) {
	var m models.HomeModel
	if !c.get(ctx, "slug:"+slug, &m) {
		return nil, false
	}
	return &m, true
}

func (c *RedisCatalogCache) SetModel(ctx context.Context, m *models.HomeModel) {
	c.set(ctx, "slug:"+m.Slug, m)
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	v, err := c.redis.Incr(ctx, ModelCacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate model cache: %w", err)
	}
	c.logger.Info("Model cache invalidated", zap.Int64("new_version", v))
	return nil
}

func (c *RedisCatalogCache) get(ctx context.Context, suffix string, dst interface{}) bool {
	version, err := c.version(ctx)
	if err != nil {
		return false
	}
	raw, err := c.redis.Get(ctx, c.key(version, suffix)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Model cache read failed", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("Failed to unmarshal cached models", zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCatalogCache) set(ctx context.Context, suffix string, v interface{}) {
	version, err := c.version(ctx)
	if err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Failed to marshal models for cache", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, c.key(version, suffix), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache models", zap.Error(err))
	}
}

// version reads the cache version, initialising it on first use.
func (c *RedisCatalogCache) version(ctx context.Context) (int64, error) {
	ver, err := c.redis.Get(ctx, ModelCacheVersionKey).Int64()
	if err == nil && ver > 0 {
		return ver, nil
	}
	if errors.Is(err, redis.Nil) {
		if err := c.redis.SetNX(ctx, ModelCacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.redis.Get(ctx, ModelCacheVersionKey).Int64()
	}
	if err == nil {
		err = fmt.Errorf("invalid model cache version %d", ver)
	}
	return 0, err
}

func (c *RedisCatalogCache) key(version int64, suffix string) string {
	return fmt.Sprintf("%s%d:%s", ModelListCachePrefix, version, suffix)
}

// NoopCatalogCache is used when Redis is not configured.
type NoopCatalogCache struct{}

func (NoopCatalogCache) GetModels(context.Context) ([]models.HomeModel, bool) { return nil, false }
func (NoopCatalogCache) SetModels(context.Context, []models.HomeModel) {}
func (NoopCatalogCache) GetModel(context.Context, string) (*models.HomeModel, bool) { return nil, false }
func (NoopCatalogCache) SetModel(context.Context, *models.HomeModel) {}
func (NoopCatalogCache) Invalidate(context.Context) error { return nil }

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	redis  *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{redis: client, prefix: "lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err := l.redis.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// The request context may already be done.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.redis, []string{full}, token).Err()
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments
// without Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrLocked
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
	}, nil
}
