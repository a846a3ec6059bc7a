package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

var (
	redisMu     sync.RWMutex
	redisClient *redis.Client
	redisOnce   sync.Once
)

// RedisOptions maps the redis settings of cfg onto client options.
func RedisOptions(cfg *Config) *redis.Options {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultRedisAddress
	}
	return &redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// ConnectRedis returns the shared client carrying the bed, visit and alarm
// channels. It returns nil without error unless REDIS_ENABLED=true.
func ConnectRedis() (*redis.Client, error) {
	return ConnectRedisWith(FromEnv())
}

// ConnectRedisWith is ConnectRedis for an explicit configuration. Only the
// first call connects; later calls return the same client.
func ConnectRedisWith(cfg *Config) (*redis.Client, error) {
	var err error
	redisOnce.Do(func() {
		if !cfg.RedisEnabled {
			return
		}
		rdb := redis.NewClient(RedisOptions(cfg))
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err = PingRedis(ctx, rdb); err != nil {
			_ = rdb.Close()
			return
		}
		setRedisClient(rdb)
	})
	return GetRedisClient(), err
}

// PingRedis checks that rdb answers.
func PingRedis(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetRedisClient returns the connected client, or nil when redis is disabled
// or unreachable.
func GetRedisClient() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisClient
}

func setRedisClient(rdb *redis.Client) {
	redisMu.Lock()
	redisClient = rdb
	redisMu.Unlock()
}
