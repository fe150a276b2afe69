package pgo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bryanhughes/pgo/wire"
)

var (
	// ErrTLSRefused occurs when the server answers 'N' to an
	// SSLRequest.
	ErrTLSRefused = errors.New("server refused TLS connection")

	// ErrDeadConn occurs when an operation is attempted on a broken
	// or closed connection.
	ErrDeadConn = errors.New("conn is dead")

	// ErrPoolTimeout occurs when a queued checkout does not receive a
	// connection within the checkout timeout.
	ErrPoolTimeout = errors.New("timed out waiting for pool connection")

	// ErrPoolFull occurs when a non-queueing checkout finds every
	// connection in use.
	ErrPoolFull = errors.New("pool is full")

	// ErrPoolClosed occurs when checking out from a closed pool.
	ErrPoolClosed = errors.New("pool is closed")
)

// PgError is an error reported by the server in an ErrorResponse.
// Fields holds every error field exactly as received, keyed by the
// single-byte protocol field code ('S', 'C', 'M', ...).
type PgError struct {
	Fields map[byte]string
}

func newPgError(fields map[byte]string) *PgError {
	copied := make(map[byte]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &PgError{Fields: copied}
}

func (pe *PgError) Error() string {
	return pe.Severity() + ": " + pe.Message() + " (SQLSTATE " + pe.Code() + ")"
}

func (pe *PgError) Severity() string { return pe.Fields[wire.ErrFieldSeverity] }

// Code returns the SQLSTATE code.
func (pe *PgError) Code() string { return pe.Fields[wire.ErrFieldCode] }

func (pe *PgError) Message() string        { return pe.Fields[wire.ErrFieldMessage] }
func (pe *PgError) Detail() string         { return pe.Fields[wire.ErrFieldDetail] }
func (pe *PgError) Hint() string           { return pe.Fields[wire.ErrFieldHint] }
func (pe *PgError) Where() string          { return pe.Fields[wire.ErrFieldWhere] }
func (pe *PgError) SchemaName() string     { return pe.Fields[wire.ErrFieldSchemaName] }
func (pe *PgError) TableName() string      { return pe.Fields[wire.ErrFieldTableName] }
func (pe *PgError) ColumnName() string     { return pe.Fields[wire.ErrFieldColumnName] }
func (pe *PgError) DataTypeName() string   { return pe.Fields[wire.ErrFieldDataTypeName] }
func (pe *PgError) ConstraintName() string { return pe.Fields[wire.ErrFieldConstraintName] }
func (pe *PgError) File() string           { return pe.Fields[wire.ErrFieldFile] }
func (pe *PgError) Routine() string        { return pe.Fields[wire.ErrFieldRoutine] }

// Position returns the 1-based cursor position into the query string,
// or 0.
func (pe *PgError) Position() int32 {
	n, _ := strconv.ParseInt(pe.Fields[wire.ErrFieldPosition], 10, 32)
	return int32(n)
}

func (pe *PgError) Line() int32 {
	n, _ := strconv.ParseInt(pe.Fields[wire.ErrFieldLine], 10, 32)
	return int32(n)
}

// Notice is a NoticeResponse. Same field layout as PgError.
type Notice PgError

// ProtocolError occurs when the server sends something the protocol
// does not allow at that point. The connection is considered corrupt
// and is marked broken.
type ProtocolError string

func (e ProtocolError) Error() string {
	return string(e)
}

// SerializationError occurs when a parameter or row value cannot be
// encoded or decoded.
type SerializationError struct {
	err error
}

func (e *SerializationError) Error() string { return e.err.Error() }
func (e *SerializationError) Unwrap() error { return e.err }

// NotImplementedError occurs when the server requests an
// authentication method this client does not speak (Kerberos, SCM,
// GSS, SSPI, SASL).
type NotImplementedError struct {
	Kind string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("authentication method %s is not implemented", e.Kind)
}

// InOtherPoolTransactionError occurs when a query names a pool other
// than the one the surrounding transaction is bound to.
type InOtherPoolTransactionError struct {
	Pool string
}

func (e *InOtherPoolTransactionError) Error() string {
	return fmt.Sprintf("query targets pool %q inside a transaction bound to another pool", e.Pool)
}

// Timeout reports whether err was caused by a timeout: a deadline from
// the caller's context, a socket deadline, or a pool checkout timeout.
// A plain cancellation (context.Canceled) is not a timeout.
func Timeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return errors.Is(err, ErrPoolTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// SafeToRetry reports whether the failed operation verifiably never
// reached the server, so retrying cannot double-execute it.
func SafeToRetry(err error) bool {
	var retryErr interface{ SafeToRetry() bool }
	if errors.As(err, &retryErr) {
		return retryErr.SafeToRetry()
	}
	return errors.Is(err, ErrPoolTimeout) || errors.Is(err, ErrPoolFull)
}

// errNotSent wraps errors raised before any bytes were written for the
// current operation.
type errNotSent struct {
	err error
}

func (e *errNotSent) Error() string     { return e.err.Error() }
func (e *errNotSent) Unwrap() error     { return e.err }
func (e *errNotSent) SafeToRetry() bool { return true }
