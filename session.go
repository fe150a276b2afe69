package pgo

import (
	"bytes"
	"context"
	"fmt"
)

// sessionBinding is the ambient connection carried in a
// context.Context by Transaction and WithConn. Queries made with that
// context run on the bound connection instead of checking one out.
//
// Binding through the context realizes the scoped, single-writer,
// auto-restored contract: the binding exists exactly for the dynamic
// extent of the function the derived context was passed to, and every
// exit path (return, error, panic) restores the caller's view because
// the caller's own context was never modified.
type sessionBinding struct {
	conn     *Conn
	poolName string
}

type sessionBindingKey struct{}

func withAmbient(ctx context.Context, b *sessionBinding) context.Context {
	return context.WithValue(ctx, sessionBindingKey{}, b)
}

func ambientBinding(ctx context.Context) (*sessionBinding, bool) {
	b, ok := ctx.Value(sessionBindingKey{}).(*sessionBinding)
	return b, ok
}

// WithConn runs fn with conn bound as the ambient connection of the
// context fn receives. Queries made with that context use conn
// directly.
func WithConn(ctx context.Context, conn *Conn, fn func(ctx context.Context) error) error {
	return fn(withAmbient(ctx, &sessionBinding{conn: conn, poolName: conn.poolName}))
}

// TxIsoLevel is a transaction isolation level.
type TxIsoLevel string

const (
	Serializable    = TxIsoLevel("serializable")
	RepeatableRead  = TxIsoLevel("repeatable read")
	ReadCommitted   = TxIsoLevel("read committed")
	ReadUncommitted = TxIsoLevel("read uncommitted")
)

// TxAccessMode is a transaction access mode.
type TxAccessMode string

const (
	ReadWrite = TxAccessMode("read write")
	ReadOnly  = TxAccessMode("read only")
)

// TxDeferrableMode is a transaction deferrable mode.
type TxDeferrableMode string

const (
	Deferrable    = TxDeferrableMode("deferrable")
	NotDeferrable = TxDeferrableMode("not deferrable")
)

// TxOptions sets the mode of the transaction started by Transaction.
type TxOptions struct {
	IsoLevel       TxIsoLevel
	AccessMode     TxAccessMode
	DeferrableMode TxDeferrableMode
}

func (txOptions *TxOptions) beginSQL() string {
	if txOptions == nil {
		return "begin"
	}

	buf := &bytes.Buffer{}
	buf.WriteString("begin")
	if txOptions.IsoLevel != "" {
		fmt.Fprintf(buf, " isolation level %s", txOptions.IsoLevel)
	}
	if txOptions.AccessMode != "" {
		fmt.Fprintf(buf, " %s", txOptions.AccessMode)
	}
	if txOptions.DeferrableMode != "" {
		fmt.Fprintf(buf, " %s", txOptions.DeferrableMode)
	}

	return buf.String()
}

// beginVerb is what the command tag decoder yields for the server's
// BEGIN tag. The begin check below compares against this rather than a
// literal so the transaction code and the decoder cannot drift apart.
var beginVerb = DecodeCommandTag("BEGIN").Verb

// Transaction runs fn inside a transaction on the default pool.
func Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return TransactionEx(ctx, DefaultPoolName, nil, fn)
}

// TransactionEx checks out a connection from the named pool, runs
// BEGIN, binds the connection as ambient for fn's context, and runs
// COMMIT when fn returns nil. Any failure (including a panic in fn)
// triggers a best-effort ROLLBACK before the original failure is
// re-raised; the connection is always checked back in.
//
// When the context already carries an ambient connection the
// transaction is already in progress: fn runs inline and no
// savepoint is created.
func TransactionEx(ctx context.Context, poolName string, txOpts *TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := ambientBinding(ctx); ok {
		return fn(ctx)
	}

	pool, err := GetPool(poolName)
	if err != nil {
		return err
	}

	ref, conn, err := pool.Checkout(ctx, nil)
	if err != nil {
		return err
	}

	results, err := conn.Exec(ctx, txOpts.beginSQL())
	if err != nil {
		pool.Checkin(ref, conn)
		return err
	}
	if len(results) != 1 || results[0].Command.Verb != beginVerb {
		rollbackAndCheckin(pool, ref, conn)
		return ProtocolError(fmt.Sprintf("unexpected result from begin: %+v", results))
	}

	txCtx := withAmbient(ctx, &sessionBinding{conn: conn, poolName: pool.name})

	if err := runBody(pool, ref, conn, txCtx, fn); err != nil {
		rollbackAndCheckin(pool, ref, conn)
		return err
	}

	if _, err := conn.Exec(ctx, "commit"); err != nil {
		rollbackAndCheckin(pool, ref, conn)
		return err
	}

	pool.Checkin(ref, conn)
	return nil
}

// runBody isolates the panic handling: a panicking body still rolls
// back and checks the connection in before the panic continues up the
// stack.
func runBody(pool *Pool, ref *PoolRef, conn *Conn, ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rollbackAndCheckin(pool, ref, conn)
			panic(r)
		}
	}()
	return fn(ctx)
}

// rollbackAndCheckin rolls back best-effort; a rollback failure means
// the connection is broken, which checkin handles by dropping it.
func rollbackAndCheckin(pool *Pool, ref *PoolRef, conn *Conn) {
	if conn.IsAlive() {
		conn.Exec(context.Background(), "rollback")
	}
	pool.Checkin(ref, conn)
}
