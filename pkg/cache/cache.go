package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/content-ops/config"
)

// Cache 读侧 JSON 缓存（统计报表等低新鲜度数据）
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient 建立 Redis 连接并 ping 确认可用
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// GetJSON 命中时反序列化到 dest 并返回 true
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// SetJSON 序列化失败或写入失败都只当缓存未命中处理
func (c *Cache) SetJSON(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}
