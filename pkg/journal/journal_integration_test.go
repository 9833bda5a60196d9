//go:build integration

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})

	return client
}

func TestIntegration_RunLifecycle(t *testing.T) {
	client := setupRedisContainer(t)
	exerciseRunLifecycle(t, New(client, time.Hour))
}

func TestIntegration_ExpiredRunIsGone(t *testing.T) {
	client := setupRedisContainer(t)
	j := New(client, time.Second)
	ctx := context.Background()

	run := NewRun("short-lived", 0)
	if err := j.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := j.GetRun(ctx, run.ID); err != ErrNotFound {
		t.Errorf("GetRun() after TTL error = %v, want ErrNotFound", err)
	}
	if _, err := j.Latest(ctx); err != ErrNotFound {
		t.Errorf("Latest() after TTL error = %v, want ErrNotFound", err)
	}
}
