// Package testutil provides shared test infrastructure for integration tests
// that require a Redis container.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartRedis()
//	    defer tc.Terminate()
//	    testRedis = tc.NewClient()
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContainer wraps a testcontainers container with the address to dial.
type TestContainer struct {
	Container testcontainers.Container
	Addr      string
}

// MustStartRedis starts a Redis container and waits until it accepts
// connections. Calls os.Exit(1) on failure (suitable for TestMain).
func MustStartRedis() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%s", host, port.Port())

	// Verify the server answers before handing it to tests.
	probe := redis.NewClient(&redis.Options{Addr: addr})
	if err := probe.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to ping redis: %v\n", err)
		os.Exit(1)
	}
	_ = probe.Close()

	return &TestContainer{Container: container, Addr: addr}
}

// NewClient returns a Redis client connected to this container.
// The caller owns the client and should Close it.
func (tc *TestContainer) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: tc.Addr})
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
