package nats

import (
	"context"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Testing is the part of *testing.T the container helper needs.
type Testing interface {
	require.TestingT
	Context() context.Context
	Helper()
	Logf(format string, args ...any)
	Cleanup(func())
}

const natsImage = "nats:2.11-alpine"

// NewTestContainer starts a JetStream server that lives as long as the test
// and returns a connector for it. Tests using it should skip with -short.
func NewTestContainer(t Testing) Connector {
	t.Helper()
	ctx := t.Context()
	c, err := testcontainers.Run(
		ctx, natsImage,
		testcontainers.WithCmd("-js", "--store_dir", "/tmp/js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Errorf("terminate %s: %v", natsImage, err)
		}
	})

	url, err := c.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("jetstream at %s", url)
	return ConnectURL(url)
}
