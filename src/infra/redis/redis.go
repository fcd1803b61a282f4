package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client            redis.UniversalClient
	defaultTTLSeconds time.Duration
}

// NewRedisClient aceita uma lista de endereços separada por vírgula; com mais
// de um endereço o cliente opera em modo cluster.
func NewRedisClient(addrs string, poolSize int, defaultTTLSeconds time.Duration) *RedisClient {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),

		// Pool settings para alta concorrência
		PoolSize:     poolSize,
		MinIdleConns: 10,

		MaxRedirects: 3,

		// Timeouts otimizados para cache
		DialTimeout:  5 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	return NewRedisClientFrom(client, defaultTTLSeconds)
}

func NewRedisClientFrom(client redis.UniversalClient, defaultTTLSeconds time.Duration) *RedisClient {
	return &RedisClient{
		client:            client,
		defaultTTLSeconds: defaultTTLSeconds,
	}
}

func (rc *RedisClient) SetWithRegistry(ctx context.Context, cacheKey string, cacheValue string, registryKeys []string) error {
	pipe := rc.client.Pipeline()

	fields := map[string]interface{}{
		"data":      cacheValue,
		"cached_at": time.Now().Unix(),
	}
	pipe.HSet(ctx, cacheKey, fields)
	pipe.Expire(ctx, cacheKey, rc.defaultTTLSeconds)

	for _, registryKey := range registryKeys {
		pipe.SAdd(ctx, registryKey, cacheKey)
		pipe.Expire(ctx, registryKey, rc.defaultTTLSeconds)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (rc *RedisClient) GetKey(ctx context.Context, key string) (string, bool, error) {
	result := rc.client.HGet(ctx, key, "data")

	// Cache miss
	if result.Err() == redis.Nil {
		return "", false, nil
	}
	if result.Err() != nil {
		return "", false, result.Err()
	}

	return result.Val(), true, nil
}

// GetMultipleSetMembers lê os membros de cada registry. Registries ausentes
// voltam com lista vazia.
func (rc *RedisClient) GetMultipleSetMembers(ctx context.Context, registryKeys []string) (map[string][]string, error) {
	pipe := rc.client.Pipeline()

	cmds := make(map[string]*redis.StringSliceCmd, len(registryKeys))
	for _, registryKey := range registryKeys {
		cmds[registryKey] = pipe.SMembers(ctx, registryKey)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	result := make(map[string][]string, len(cmds))
	for registryKey, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("registry %s: %w", registryKey, err)
		}
		result[registryKey] = members
	}

	return result, nil
}

// Invalidação em cluster requer cuidado especial: as chaves podem estar em
// slots diferentes, então cada DEL é enviado isoladamente.
func (rc *RedisClient) InvalidateEntity(ctx context.Context, keys []string) error {
	var errors []string

	for _, key := range keys {
		if err := rc.client.Del(ctx, key).Err(); err != nil {
			errors = append(errors, fmt.Sprintf("key %s: %v", key, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalidation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (rc *RedisClient) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
