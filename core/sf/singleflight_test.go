package sf

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_Do(t *testing.T) {
	var (
		g       Group[int]
		calls   atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)

	fn := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := g.Do(t.Context(), "k", fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(5))
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestGroup_error(t *testing.T) {
	var g Group[string]
	boom := errors.New("boom")
	_, _, err := g.Do(t.Context(), "k", func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}

func TestGroup_callerCancel(t *testing.T) {
	var g Group[int]
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, _, err := g.Do(ctx, "k", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
