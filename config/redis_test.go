package config

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv sets environment variables for the duration of fn and restores them
// after. An empty value unsets the variable.
func withEnv(t *testing.T, vars map[string]string, fn func(t *testing.T)) {
	t.Helper()
	for k, v := range vars {
		old, had := os.LookupEnv(k)
		if v == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, v)
		}
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
	ResetRedisClientForTest()
	t.Cleanup(ResetRedisClientForTest)
	fn(t)
}

func TestConnectRedis_Disabled(t *testing.T) {
	withEnv(t, map[string]string{"REDIS_ENABLED": ""}, func(t *testing.T) {
		rdb, err := ConnectRedis()
		assert.NoError(t, err)
		assert.Nil(t, rdb)
	})
}

func TestConnectRedis_Unreachable(t *testing.T) {
	withEnv(t, map[string]string{"REDIS_ENABLED": "true", "REDIS_ADDR": "invalid-address:99999"}, func(t *testing.T) {
		rdb, err := ConnectRedis()
		assert.Error(t, err)
		assert.Nil(t, rdb)
		assert.Nil(t, GetRedisClient())
	})
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		addr string
		pass string
		db   int
	}{
		{name: "defaults", vars: map[string]string{"REDIS_ADDR": "", "REDIS_PASSWORD": "", "REDIS_DB": ""}, addr: defaultRedisAddress},
		{name: "custom", vars: map[string]string{"REDIS_ADDR": "cache:6380", "REDIS_PASSWORD": "secret", "REDIS_DB": "5"}, addr: "cache:6380", pass: "secret", db: 5},
		{name: "invalid db", vars: map[string]string{"REDIS_ADDR": "", "REDIS_PASSWORD": "", "REDIS_DB": "invalid"}, addr: defaultRedisAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.vars, func(t *testing.T) {
				opts := RedisOptions(FromEnv())
				assert.Equal(t, tt.addr, opts.Addr)
				assert.Equal(t, tt.pass, opts.Password)
				assert.Equal(t, tt.db, opts.DB)
			})
		})
	}
}

func TestRedisOptions_EmptyAddressFallsBack(t *testing.T) {
	assert.Equal(t, defaultRedisAddress, RedisOptions(&Config{}).Addr)
}

func TestPingRedis(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, PingRedis(context.Background(), rdb))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := PingRedis(context.Background(), rdb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRedisClient_Injected(t *testing.T) {
	ResetRedisClientForTest()
	t.Cleanup(ResetRedisClientForTest)
	assert.Nil(t, GetRedisClient())

	mockClient, _ := redismock.NewClientMock()
	SetRedisClientForTest(mockClient)
	assert.Same(t, mockClient, GetRedisClient())

	ResetRedisClientForTest()
	assert.Nil(t, GetRedisClient())
}

func TestConnectRedis_ConcurrentCalls(t *testing.T) {
	withEnv(t, map[string]string{"REDIS_ENABLED": "false"}, func(t *testing.T) {
		type callResult struct {
			ok  bool
			err error
		}
		done := make(chan callResult, 5)
		for i := 0; i < 5; i++ {
			go func() {
				rdb, err := ConnectRedis()
				done <- callResult{ok: rdb == nil, err: err}
			}()
		}
		for i := 0; i < 5; i++ {
			res := <-done
			assert.NoError(t, res.err)
			assert.True(t, res.ok)
		}
	})
}
