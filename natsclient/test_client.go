// Testcontainers-based NATS infrastructure for integration tests.
package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestServer provides a containerized NATS server for integration tests.
type TestServer struct {
	container testcontainers.Container
	URL       string
	cleanup   func()
}

// testConfig holds configuration for the test server
type testConfig struct {
	jetstream    bool
	natsVersion  string
	startTimeout time.Duration
}

// TestOption for configuring the test server
type TestOption func(*testConfig)

// WithJetStream enables JetStream for tests that need it
func WithJetStream() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithNATSVersion specifies a specific NATS server version to use
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// NewTestServer starts a NATS container and registers cleanup on t. Skipped
// in short mode since it requires a container runtime.
func NewTestServer(t *testing.T, opts ...TestOption) *TestServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	args := []string{}
	if cfg.jetstream {
		args = append(args, "--jetstream")
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          args,
		WaitingFor: wait.ForLog("Server is ready").
			WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container port: %v", err)
	}

	ts := &TestServer{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
		cleanup: func() {
			_ = container.Terminate(context.Background())
		},
	}
	t.Cleanup(ts.cleanup)

	return ts
}

// Connect dials the containerized server with the production connector.
func (ts *TestServer) Connect(t *testing.T) Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, opts, err := ParseServer(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	conn, err := Dial(ctx, opts)
	if err != nil {
		t.Fatalf("connect to test server: %v", err)
	}
	t.Cleanup(conn.Close)

	return conn
}
