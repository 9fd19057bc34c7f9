package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"video-relay-go/config"
)

const redisCachePrefix = "vrelay:video:"

// MetadataCache stores raw source metadata keyed by video id.
// Entries never outlive config.MaxCacheTTL so cached selectors stay openable.
type MetadataCache interface {
	Get(ctx context.Context, videoID string) (*youtube.Video, bool)
	Set(ctx context.Context, videoID string, video *youtube.Video) error
}

// NewMetadataCache builds the configured backend. The returned stop func
// releases its connection or scheduler; it is never nil.
func NewMetadataCache(settings *config.Settings) (MetadataCache, func(), error) {
	switch settings.CacheBackend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: settings.CacheRedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, func() {}, err
		}
		logrus.WithField("addr", settings.CacheRedisAddr).Info("[Cache] Using redis backend")
		return NewRedisCache(client, settings.CacheTTL), func() { client.Close() }, nil

	case config.CacheMemory:
		cache := NewMemoryCache(settings.CacheTTL)
		scheduler, err := StartPruneScheduler(cache, settings.CachePruneInterval)
		if err != nil {
			return nil, func() {}, err
		}
		logrus.WithField("ttl", settings.CacheTTL).Info("[Cache] Using memory backend")
		return cache, func() { <-scheduler.Stop().Done() }, nil

	default:
		return nil, func() {}, nil
	}
}

// RedisCache stores videos in Redis as JSON
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: min(ttl, config.MaxCacheTTL)}
}

func (r *RedisCache) Get(ctx context.Context, videoID string) (*youtube.Video, bool) {
	data, err := r.client.Get(ctx, redisCachePrefix+videoID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("video", videoID).Warn("[Cache] Redis get failed")
		}
		return nil, false
	}

	var video youtube.Video
	if err := json.Unmarshal(data, &video); err != nil {
		logrus.WithError(err).WithField("video", videoID).Warn("[Cache] Dropping corrupt entry")
		r.client.Del(ctx, redisCachePrefix+videoID)
		return nil, false
	}
	return &video, true
}

func (r *RedisCache) Set(ctx context.Context, videoID string, video *youtube.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+videoID, data, r.ttl).Err()
}

type memoryEntry struct {
	video     *youtube.Video
	expiresAt time.Time
}

// MemoryCache is a process-local cache with expiry checked on read and
// swept periodically by Prune.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     min(ttl, config.MaxCacheTTL),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, videoID string) (*youtube.Video, bool) {
	m.mu.RLock()
	entry, ok := m.entries[videoID]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.video, true
}

func (m *MemoryCache) Set(_ context.Context, videoID string, video *youtube.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[videoID] = memoryEntry{video: video, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Len counts entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Prune removes expired entries and returns how many were dropped
func (m *MemoryCache) Prune() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
			deleted++
		}
	}
	return deleted
}

// StartPruneScheduler sweeps cache on the given cron spec
func StartPruneScheduler(cache *MemoryCache, spec string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		if deleted := cache.Prune(); deleted > 0 {
			logrus.WithField("deleted", deleted).Debug("[Cache] Pruned expired entries")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logrus.WithField("spec", spec).Info("[Cache] Prune scheduler started")
	return c, nil
}
