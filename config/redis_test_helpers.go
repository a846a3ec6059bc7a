package config

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// SetRedisClientForTest installs client as the shared redis client, e.g. a
// redismock client.
func SetRedisClientForTest(client *redis.Client) {
	setRedisClient(client)
}

// ResetRedisClientForTest forgets the shared client so the next ConnectRedis
// connects again.
func ResetRedisClientForTest() {
	redisMu.Lock()
	defer redisMu.Unlock()
	redisClient = nil
	redisOnce = sync.Once{}
}
