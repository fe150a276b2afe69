// Package ctxwatch turns context cancellation into an immediate action
// on a blocking resource, typically yanking a net.Conn deadline so an
// in-flight read returns.
package ctxwatch

import "context"

// ContextWatcher watches one context at a time. It is not safe for
// concurrent use; the owning connection serializes Watch/Unwatch
// around its I/O.
type ContextWatcher struct {
	onCancel             func()
	onUnwatchAfterCancel func()

	unwatchChan       chan struct{}
	watchInProgress   bool
	onCancelWasCalled bool
}

// NewContextWatcher returns a ContextWatcher. onCancel runs when a
// watched context is canceled. onUnwatchAfterCancel runs during the
// Unwatch that follows a cancel, to undo onCancel's effect.
func NewContextWatcher(onCancel func(), onUnwatchAfterCancel func()) *ContextWatcher {
	return &ContextWatcher{
		onCancel:             onCancel,
		onUnwatchAfterCancel: onUnwatchAfterCancel,
		unwatchChan:          make(chan struct{}),
	}
}

// Watch starts watching ctx. A context that can never be canceled is
// not watched at all.
func (cw *ContextWatcher) Watch(ctx context.Context) {
	if cw.watchInProgress {
		panic("Watch already in progress")
	}

	cw.onCancelWasCalled = false

	if ctx.Done() == nil {
		return
	}

	cw.watchInProgress = true
	go func() {
		select {
		case <-ctx.Done():
			cw.onCancel()
			cw.onCancelWasCalled = true
			<-cw.unwatchChan
		case <-cw.unwatchChan:
		}
	}()
}

// Unwatch stops watching the current context. If onCancel already ran,
// onUnwatchAfterCancel runs before Unwatch returns.
func (cw *ContextWatcher) Unwatch() {
	if !cw.watchInProgress {
		return
	}

	cw.unwatchChan <- struct{}{}
	if cw.onCancelWasCalled {
		cw.onUnwatchAfterCancel()
	}
	cw.watchInProgress = false
}
