// Package inflight is a keyed registry of in-flight operations. Concurrent
// callers asking for the same key share the result of the single running
// call.
package inflight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group coalesces calls by key. The zero value is not usable; use New.
type Group[T any] struct {
	g singleflight.Group
}

func New[T any]() *Group[T] {
	return &Group[T]{}
}

// Do runs fn for key unless a call for key is already running, in which
// case it waits for that call's result. fn receives a context detached from
// the caller's cancellation so one impatient caller cannot fail the others;
// each caller still stops waiting when its own ctx is done. shared reports
// whether the result was delivered to more than one caller.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := g.g.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}
