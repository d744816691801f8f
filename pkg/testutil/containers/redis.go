//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"kiosk/internal/platform/config"
	redisplatform "kiosk/internal/platform/redis"
)

// RedisContainer is the insurance cache backend used by integration suites.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	// Client is built through the platform constructor so suites exercise the
	// same pool settings the server uses.
	Platform *redisplatform.Client
	Client   *redis.Client
}

// NewRedisContainer starts redis:7-alpine. The Manager shares it across suites;
// Ryuk reaps it when the test binary exits.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}

	client, err := redisplatform.New(ctx, config.RedisConfig{
		URL:         url,
		PoolSize:    4,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect redis: %v", err)
	}

	return &RedisContainer{
		Container: container,
		URL:       url,
		Platform:  client,
		Client:    client.Client,
	}
}

// FlushAll empties the cache between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

// Healthy reports whether the platform client can reach the container.
func (r *RedisContainer) Healthy(ctx context.Context) bool {
	return r.Platform.Health(ctx) == nil
}
