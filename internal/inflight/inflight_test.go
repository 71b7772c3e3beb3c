package inflight

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

func TestDo_CoalescesConcurrentCallers(t *testing.T) {
	g := New[string]()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "done", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = g.Do(context.Background(), "k", fn)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _, _ = g.Do(context.Background(), "k", fn)
	}()

	// give the second caller time to join the running call
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"done", "done"}, results)
}

func TestDo_PropagatesError(t *testing.T) {
	g := New[int]()
	boom := errors.New("boom")

	_, _, err := g.Do(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })

	assert.ErrorIs(t, err, boom)
}

func TestDo_CallerCancellationDoesNotCancelWork(t *testing.T) {
	g := New[int]()
	release := make(chan struct{})
	workErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _, _ = g.Do(ctx, "k", func(ctx context.Context) (int, error) {
			<-release
			workErr <- ctx.Err()
			return 1, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	close(release)

	select {
	case err := <-workErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("work did not complete")
	}
}

func TestDo_CallerStopsWaitingOnCancel(t *testing.T) {
	g := New[int]()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := g.Do(ctx, "k", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
