package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

type TestingEnv struct {
	*Env
	t *testing.T
}

func (e *TestingEnv) Assert() *TestingEnvAssert {
	return &TestingEnvAssert{env: e}
}

// StartTestEnv starts an Env on an in-memory store, snapshotter and bus. The
// Env is shut down when the test ends.
func StartTestEnv(t *testing.T, opts ...EnvOption) *TestingEnv {
	t.Helper()
	e, err := NewEnv(
		WithCtx(t.Context()),
		WithStore(NewInMemoryStore()),
		WithSnapshotter(NewInMemorySnapshotter()),
		WithBus(NewInMemoryBus()),
		WithEnvOpts(opts...),
	)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return &TestingEnv{t: t, Env: e}
}

type TestingEnvAssert struct {
	env *TestingEnv
}

func (a *TestingEnvAssert) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expect Version,
	events ...any,
) *AppendResult {
	res, err := a.env.Append(ctx, aggType, aggID, expect, events...)
	require.NoError(a.env.t, err)
	return res
}

// Synced catches up all consumers of the Env.
func (a *TestingEnvAssert) Synced(ctx context.Context) {
	require.NoError(a.env.t, a.env.Sync(ctx))
}

func (a *TestingEnvAssert) Version(ctx context.Context, aggID string, want Version) {
	got, err := a.env.Store().GetVersion(ctx, aggID)
	require.NoError(a.env.t, err)
	require.Equal(a.env.t, want, got)
}
