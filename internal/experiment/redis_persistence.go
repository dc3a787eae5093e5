package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cometab"

// RedisBackend はRedisを使ったサーバー側の割り当てストア。
// 訪問者ごとのPersistenceをForVisitorで取り出して使う。
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend はRedisBackendを生成する。
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// OpenRedis はREDIS_URLからクライアントを生成し、疎通を確認する。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// ForVisitor は指定訪問者にスコープされたPersistenceを返す。
func (b *RedisBackend) ForVisitor(visitorID string) *RedisPersistence {
	return &RedisPersistence{client: b.client, visitorID: visitorID}
}

// RedisPersistence は1訪問者分のキー空間を扱うPersistence。
// キーは cometab:<visitorID>:<key> の形式で、有効期限はRedisのTTLに任せる。
type RedisPersistence struct {
	client    redis.UniversalClient
	visitorID string
}

func (p *RedisPersistence) redisKey(key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, p.visitorID, key)
}

// Get はキーの値を返す。キーが無い場合はfalseを返す。
func (p *RedisPersistence) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := p.client.Get(ctx, p.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return v, true, nil
}

// Set はキーに値をTTL付きで保存する。
func (p *RedisPersistence) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := p.client.Set(ctx, p.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

// compile-time interface check
var _ Persistence = (*RedisPersistence)(nil)
