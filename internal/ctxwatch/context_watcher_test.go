package ctxwatch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanhughes/pgo/internal/ctxwatch"
)

func TestContextWatcherContextCancelled(t *testing.T) {
	t.Parallel()

	canceled := make(chan struct{})
	var cleanupCalled int64

	cw := ctxwatch.NewContextWatcher(
		func() { close(canceled) },
		func() { atomic.AddInt64(&cleanupCalled, 1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	cw.Watch(ctx)
	cancel()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("onCancel never ran")
	}

	cw.Unwatch()
	assert.EqualValues(t, 1, atomic.LoadInt64(&cleanupCalled))
}

func TestContextWatcherUnwatchedBeforeCancel(t *testing.T) {
	t.Parallel()

	var onCancelCalled, cleanupCalled int64

	cw := ctxwatch.NewContextWatcher(
		func() { atomic.AddInt64(&onCancelCalled, 1) },
		func() { atomic.AddInt64(&cleanupCalled, 1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	cw.Watch(ctx)
	cw.Unwatch()
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt64(&onCancelCalled))
	assert.EqualValues(t, 0, atomic.LoadInt64(&cleanupCalled))
}

func TestContextWatcherUnwatchIsIdempotent(t *testing.T) {
	t.Parallel()

	cw := ctxwatch.NewContextWatcher(func() {}, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cw.Watch(ctx)
	cw.Unwatch()
	cw.Unwatch()
}

func TestContextWatcherBackgroundContextIsNotWatched(t *testing.T) {
	t.Parallel()

	cw := ctxwatch.NewContextWatcher(func() {}, func() {})

	// a context that can never be canceled starts no goroutine and a
	// second Watch is immediately legal
	cw.Watch(context.Background())
	cw.Unwatch()
	cw.Watch(context.Background())
	cw.Unwatch()
}

func TestContextWatcherDoubleWatchPanics(t *testing.T) {
	t.Parallel()

	cw := ctxwatch.NewContextWatcher(func() {}, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cw.Watch(ctx)
	defer cw.Unwatch()

	require.Panics(t, func() { cw.Watch(ctx) })
}
