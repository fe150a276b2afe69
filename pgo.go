package pgo

import (
	"context"
	"fmt"
	"sync"
)

// DefaultPoolName is the pool used by Query and Transaction when no
// pool is named.
const DefaultPoolName = "default"

var poolRegistry = struct {
	mu sync.RWMutex
	m  map[string]*Pool
}{m: make(map[string]*Pool)}

// StartPool creates a pool and registers it process-wide under name.
// Starting a second pool with the same name is an error.
func StartPool(name string, config *PoolConfig) (*Pool, error) {
	pool, err := NewPool(name, config)
	if err != nil {
		return nil, err
	}

	poolRegistry.mu.Lock()
	defer poolRegistry.mu.Unlock()
	if _, exists := poolRegistry.m[name]; exists {
		return nil, fmt.Errorf("pool %q is already started", name)
	}
	poolRegistry.m[name] = pool

	return pool, nil
}

// GetPool returns the registered pool named name.
func GetPool(name string) (*Pool, error) {
	poolRegistry.mu.RLock()
	defer poolRegistry.mu.RUnlock()
	pool, ok := poolRegistry.m[name]
	if !ok {
		return nil, fmt.Errorf("pool %q is not started", name)
	}
	return pool, nil
}

// StopPool closes the named pool and removes it from the registry.
func StopPool(name string) error {
	poolRegistry.mu.Lock()
	pool, ok := poolRegistry.m[name]
	delete(poolRegistry.m, name)
	poolRegistry.mu.Unlock()

	if !ok {
		return fmt.Errorf("pool %q is not started", name)
	}
	pool.Close()
	return nil
}

// QueryExOptions adjusts pool selection, checkout behavior, and row
// decoding for one query.
type QueryExOptions struct {
	// Pool selects a named pool. Empty means the default pool, or the
	// transaction's pool when called inside a transaction.
	Pool string

	CheckoutOpts
	QueryOpts
}

// Query runs sql with args on the default pool, or on the ambient
// connection when ctx carries one (inside Transaction or WithConn).
func Query(ctx context.Context, sql string, args ...any) (*Result, error) {
	return QueryEx(ctx, sql, args, nil)
}

// QueryEx is Query with options.
//
// Inside a transaction, naming a pool other than the transaction's
// fails immediately with InOtherPoolTransactionError; no connection is
// touched.
func QueryEx(ctx context.Context, sql string, args []any, opts *QueryExOptions) (*Result, error) {
	if opts == nil {
		opts = &QueryExOptions{}
	}

	if b, ok := ambientBinding(ctx); ok {
		if opts.Pool != "" && opts.Pool != b.poolName {
			return nil, &InOtherPoolTransactionError{Pool: opts.Pool}
		}
		return b.conn.Query(ctx, sql, args, &opts.QueryOpts)
	}

	poolName := opts.Pool
	if poolName == "" {
		poolName = DefaultPoolName
	}
	pool, err := GetPool(poolName)
	if err != nil {
		return nil, err
	}

	ref, conn, err := pool.Checkout(ctx, &opts.CheckoutOpts)
	if err != nil {
		return nil, err
	}
	defer pool.Checkin(ref, conn)

	result, err := conn.Query(ctx, sql, args, &opts.QueryOpts)
	if err != nil {
		return nil, err
	}
	result.QueueTime = ref.QueueTime()
	return result, nil
}

// Checkout takes a connection from the named pool. The returned ref
// must be passed back to Checkin exactly once.
func Checkout(ctx context.Context, poolName string, opts *CheckoutOpts) (*PoolRef, *Conn, error) {
	pool, err := GetPool(poolName)
	if err != nil {
		return nil, nil, err
	}
	return pool.Checkout(ctx, opts)
}

// Checkin returns a checked-out connection to its pool.
func Checkin(ref *PoolRef, conn *Conn) {
	if ref == nil || ref.pool == nil {
		return
	}
	ref.pool.Checkin(ref, conn)
}

// Break forcibly discards a connection. A pooled connection is removed
// from its pool's accounting and replaced as needed.
func Break(conn *Conn) {
	if conn.poolName == "" {
		conn.Break()
		return
	}

	pool, err := GetPool(conn.poolName)
	if err != nil {
		conn.Break()
		return
	}
	pool.Break(conn)
}
