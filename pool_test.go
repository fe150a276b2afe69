package pgo

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanhughes/pgo/internal/ctxwatch"
	"github.com/bryanhughes/pgo/wire"
)

// discardConn is a net.Conn whose writes vanish, for pool tests that
// never speak the protocol.
type discardConn struct{}

func (discardConn) Read(p []byte) (int, error)       { return 0, net.ErrClosed }
func (discardConn) Write(p []byte) (int, error)      { return len(p), nil }
func (discardConn) Close() error                     { return nil }
func (discardConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (discardConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (discardConn) SetDeadline(time.Time) error      { return nil }
func (discardConn) SetReadDeadline(time.Time) error  { return nil }
func (discardConn) SetWriteDeadline(time.Time) error { return nil }

func newStubConn(p *Pool) *Conn {
	c := &Conn{
		netConn:           discardConn{},
		config:            p.config,
		status:            connStatusIdle,
		parameterStatuses: make(map[string]string),
		typeMap:           p.typeMap,
		poolName:          p.name,
	}
	c.contextWatcher = ctxwatch.NewContextWatcher(func() {}, func() {})
	c.frontend = wire.NewFrontend(c.netConn, c.netConn)
	return c
}

func stubPool(t *testing.T, size int) *Pool {
	t.Helper()

	p, err := NewPool("stub", &PoolConfig{
		Size:            size,
		Host:            "localhost",
		User:            "stub",
		CheckoutTimeout: 250 * time.Millisecond,
	})
	require.NoError(t, err)
	p.connect = func(ctx context.Context) (*Conn, error) {
		return newStubConn(p), nil
	}
	return p
}

func TestPoolCheckoutCheckinInvariant(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 2)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	stat := p.Stat()
	assert.Equal(t, 1, stat.CheckedOut)
	assert.Equal(t, 0, stat.Ready)

	p.Checkin(ref, conn)

	stat = p.Stat()
	assert.Equal(t, 0, stat.CheckedOut)
	assert.Equal(t, 1, stat.Ready)
	assert.LessOrEqual(t, stat.Ready+stat.CheckedOut, stat.Size)
}

func TestPoolReuseIsLIFO(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 2)

	ref1, conn1, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)
	ref2, conn2, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	p.Checkin(ref1, conn1)
	p.Checkin(ref2, conn2)

	// conn2 was checked in last; it comes back first
	_, conn3, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, conn2, conn3)
}

func TestPoolNoQueueFull(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	_, _, err = p.Checkout(context.Background(), &CheckoutOpts{NoQueue: true})
	assert.ErrorIs(t, err, ErrPoolFull)

	// pool state is untouched by the failed checkout
	stat := p.Stat()
	assert.Equal(t, 1, stat.CheckedOut)
	assert.Equal(t, 0, stat.Waiting)

	p.Checkin(ref, conn)
}

func TestPoolCheckoutTimeout(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	_, _, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	_, _, err = p.Checkout(context.Background(), &CheckoutOpts{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrPoolTimeout)
	assert.Equal(t, 0, p.Stat().Waiting)
}

func TestPoolWaitersAreFIFO(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	order := make(chan string, 2)

	startWaiter := func(name string) {
		go func() {
			wRef, wConn, err := p.Checkout(context.Background(), &CheckoutOpts{Timeout: 5 * time.Second})
			if err != nil {
				order <- "err:" + name
				return
			}
			order <- name
			p.Checkin(wRef, wConn)
		}()
	}

	startWaiter("a")
	waitForWaiting(t, p, 1)
	startWaiter("b")
	waitForWaiting(t, p, 2)

	p.Checkin(ref, conn)

	assert.Equal(t, "a", <-order)
	assert.Equal(t, "b", <-order)
}

func TestPoolQueueTimeRecorded(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	type result struct {
		ref  *PoolRef
		conn *Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		wRef, wConn, err := p.Checkout(context.Background(), nil)
		resultCh <- result{wRef, wConn, err}
	}()

	waitForWaiting(t, p, 1)
	time.Sleep(25 * time.Millisecond)
	p.Checkin(ref, conn)

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Greater(t, r.ref.QueueTime(), time.Duration(0))
	p.Checkin(r.ref, r.conn)
}

func TestPoolDoubleCheckinIsNoOp(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 2)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	p.Checkin(ref, conn)
	p.Checkin(ref, conn)

	stat := p.Stat()
	assert.Equal(t, 1, stat.Ready)
	assert.Equal(t, 0, stat.CheckedOut)
}

func TestPoolBreakRemovesAndReplaces(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	_, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	type result struct {
		conn *Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		wRef, wConn, err := p.Checkout(context.Background(), &CheckoutOpts{Timeout: 5 * time.Second})
		if err == nil {
			defer p.Checkin(wRef, wConn)
		}
		resultCh <- result{wConn, err}
	}()
	waitForWaiting(t, p, 1)

	p.Break(conn)
	assert.False(t, conn.IsAlive())

	r := <-resultCh
	require.NoError(t, r.err)
	assert.NotSame(t, conn, r.conn)
}

func TestPoolBrokenCheckinNotReused(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	ref, conn, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	conn.Break()
	p.Checkin(ref, conn)

	stat := p.Stat()
	assert.Equal(t, 0, stat.Ready)
	assert.Equal(t, 0, stat.CheckedOut)

	// capacity reopened; a fresh checkout dials a new conn
	ref2, conn2, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
	p.Checkin(ref2, conn2)
}

func TestPoolCloseReleasesWaiters(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	_, _, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := p.Checkout(context.Background(), &CheckoutOpts{Timeout: 5 * time.Second})
		errCh <- err
	}()
	waitForWaiting(t, p, 1)

	p.Close()

	assert.ErrorIs(t, <-errCh, ErrPoolClosed)

	_, _, err = p.Checkout(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolCheckoutContextCancel(t *testing.T) {
	t.Parallel()

	p := stubPool(t, 1)

	_, _, err := p.Checkout(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := p.Checkout(ctx, &CheckoutOpts{Timeout: 5 * time.Second})
		errCh <- err
	}()
	waitForWaiting(t, p, 1)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, p.Stat().Waiting)
}

func waitForWaiting(t *testing.T, p *Pool, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stat().Waiting >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pool never reached %d waiters", n)
}
