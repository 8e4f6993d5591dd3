package sf

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent calls with the same key. The zero value is
// ready to use.
type Group[T any] struct {
	group singleflight.Group
}

// Do runs fn once for all concurrent callers of key. shared reports whether
// the result was handed to more than one caller.
//
// fn runs detached from the cancellation of any single caller, so one caller
// giving up does not fail the others. A caller whose ctx ends stops waiting
// and gets ctx.Err().
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	ch := g.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}

// Forget drops an in-flight key so that the next call starts a fresh run.
func (g *Group[T]) Forget(key string) { g.group.Forget(key) }
