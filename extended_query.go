package pgo

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanhughes/pgo/wire"
)

// eqState enumerates the extended-query states. Each state is named
// for the message the machine is waiting on. The WithParams states
// belong to the describe-before-bind path, which has sent Flush but
// not yet Sync.
type eqState int

const (
	eqAwaitParseComplete eqState = iota
	eqAwaitParseCompleteWithParams
	eqAwaitParameterDescription
	eqAwaitPreBindRowDescription
	eqAwaitBindComplete
	eqAwaitRowDescription
	eqAwaitRows
	eqAwaitNoDataCommandComplete
	eqAwaitReadyForQuery
)

// Query runs sql with parameters via the extended query protocol.
// Every parameter and result column uses the binary format. Parameters
// whose Go type does not determine a PostgreSQL type (nil, maps,
// slices) make the flow ask the server for a parameter description
// before binding.
func (c *Conn) Query(ctx context.Context, sql string, args []any, opts *QueryOpts) (*Result, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.unlock()

	startTime := time.Now()

	c.contextWatcher.Watch(ctx)
	defer c.contextWatcher.Unwatch()

	asMaps := opts != nil && opts.RowsAsMaps

	var state eqState
	syncSent := false

	if c.typeMap.BindRequiresStatementDescription(args) {
		buf := (&wire.Parse{Query: sql}).Encode(c.wbuf[:0])
		buf = (&wire.Describe{ObjectType: wire.DescribeStatement}).Encode(buf)
		buf = (&wire.Flush{}).Encode(buf)

		if _, err := c.netConn.Write(buf); err != nil {
			c.die(err)
			return nil, err
		}
		state = eqAwaitParseCompleteWithParams
	} else {
		oids := make([]uint32, len(args))
		for i, arg := range args {
			oids[i], _ = c.typeMap.OIDForValue(arg)
		}

		params, err := c.encodeParams(ctx, args, oids)
		if err != nil {
			// nothing has been sent; the connection is untouched
			return nil, &errNotSent{err: &SerializationError{err: err}}
		}

		buf := (&wire.Parse{Query: sql, ParameterOIDs: oids}).Encode(c.wbuf[:0])
		buf = c.appendBindExecuteSync(buf, params)

		if _, err := c.netConn.Write(buf); err != nil {
			c.die(err)
			return nil, err
		}
		state = eqAwaitParseComplete
		syncSent = true
	}

	var pending *pendingResult
	var result *Result
	var queryErr error

	failWith := func(err error) {
		if queryErr == nil {
			queryErr = err
		}
	}

	for {
		msg, err := c.receiveMessage(ctx)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *wire.ParameterStatus, *wire.NoticeResponse, *wire.NotificationResponse:
			// handled by receiveMessage in every state
			continue

		case *wire.ErrorResponse:
			// the describe-before-bind path sent Flush, not Sync; a
			// Sync must go out before the server will send
			// ReadyForQuery
			if !syncSent {
				if err := c.frontend.Send(&wire.Sync{}); err != nil {
					c.die(err)
					return nil, err
				}
				syncSent = true
			}
			failWith(newPgError(msg.Fields))
			// a FATAL error closes the connection instead of sending
			// ReadyForQuery; the server error is still the better
			// report
			c.drainUntilReadyForQuery(ctx)
			c.logQueryError(ctx, sql, queryErr)
			return nil, queryErr

		case *wire.ParseComplete:
			switch state {
			case eqAwaitParseComplete:
				state = eqAwaitBindComplete
			case eqAwaitParseCompleteWithParams:
				state = eqAwaitParameterDescription
			default:
				return nil, c.unexpectedEQMessage(ctx, msg)
			}

		case *wire.ParameterDescription:
			if state != eqAwaitParameterDescription {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}

			params, err := c.encodeParams(ctx, args, msg.ParameterOIDs)
			if err != nil {
				// mid-protocol: close the exchange before reporting
				if sendErr := c.frontend.Send(&wire.Sync{}); sendErr != nil {
					c.die(sendErr)
					return nil, sendErr
				}
				syncSent = true
				failWith(&SerializationError{err: err})
				c.drainUntilReadyForQuery(ctx)
				return nil, queryErr
			}

			buf := c.appendBindExecuteSync(c.wbuf[:0], params)
			if _, err := c.netConn.Write(buf); err != nil {
				c.die(err)
				return nil, err
			}
			syncSent = true
			state = eqAwaitPreBindRowDescription

		case *wire.RowDescription:
			switch state {
			case eqAwaitPreBindRowDescription:
				// statement description; the portal description with
				// the final format codes follows BindComplete
				state = eqAwaitBindComplete
			case eqAwaitRowDescription:
				c.refreshMissingTypes(ctx, msg.Fields)
				pending = newPendingResult(msg.Fields)
				state = eqAwaitRows
			default:
				return nil, c.unexpectedEQMessage(ctx, msg)
			}

		case *wire.NoData:
			switch state {
			case eqAwaitPreBindRowDescription:
				state = eqAwaitBindComplete
			case eqAwaitRowDescription:
				pending = newPendingResult(nil)
				state = eqAwaitNoDataCommandComplete
			default:
				return nil, c.unexpectedEQMessage(ctx, msg)
			}

		case *wire.BindComplete:
			if state != eqAwaitBindComplete {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			state = eqAwaitRowDescription

		case *wire.DataRow:
			if state != eqAwaitRows {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			if queryErr == nil {
				if err := pending.appendRow(c.typeMap, msg.Values, asMaps); err != nil {
					failWith(&SerializationError{err: err})
				}
			}

		case *wire.PortalSuspended:
			if state != eqAwaitRows {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			buf := (&wire.Execute{}).Encode(c.wbuf[:0])
			buf = (&wire.Flush{}).Encode(buf)
			if _, err := c.netConn.Write(buf); err != nil {
				c.die(err)
				return nil, err
			}

		case *wire.CommandComplete:
			if state != eqAwaitRows && state != eqAwaitNoDataCommandComplete {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			result = pending.finish(DecodeCommandTag(string(msg.CommandTag)))
			pending = nil
			state = eqAwaitReadyForQuery

		case *wire.EmptyQueryResponse:
			if state != eqAwaitRows && state != eqAwaitNoDataCommandComplete && state != eqAwaitRowDescription {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			result = &Result{}
			pending = nil
			state = eqAwaitReadyForQuery

		case *wire.ReadyForQuery:
			if state != eqAwaitReadyForQuery {
				return nil, c.unexpectedEQMessage(ctx, msg)
			}
			if queryErr != nil {
				c.logQueryError(ctx, sql, queryErr)
				return nil, queryErr
			}
			if c.shouldLog(LogLevelInfo) {
				c.log(ctx, LogLevelInfo, "Query", map[string]interface{}{
					"sql":  sql,
					"args": logQueryArgs(args),
					"time": time.Since(startTime),
					"rows": result.NumRows,
				})
			}
			return result, nil

		default:
			return nil, c.unexpectedEQMessage(ctx, msg)
		}
	}
}

// appendBindExecuteSync appends Bind (unnamed statement and portal,
// all parameters and result columns binary), Describe of the portal,
// Execute with no row limit, and Sync.
func (c *Conn) appendBindExecuteSync(buf []byte, params [][]byte) []byte {
	formatCodes := make([]int16, len(params))
	for i := range formatCodes {
		formatCodes[i] = wire.BinaryFormat
	}

	bind := &wire.Bind{
		ParameterFormatCodes: formatCodes,
		Parameters:           params,
		ResultFormatCodes:    []int16{wire.BinaryFormat},
	}

	buf = bind.Encode(buf)
	buf = (&wire.Describe{ObjectType: wire.DescribePortal}).Encode(buf)
	buf = (&wire.Execute{}).Encode(buf)
	buf = (&wire.Sync{}).Encode(buf)
	return buf
}

// encodeParams serializes args using the codec for each OID. Unknown
// parameter OIDs are refreshed out of band first; an arg whose type
// still has no codec is an encoding error.
func (c *Conn) encodeParams(ctx context.Context, args []any, oids []uint32) ([][]byte, error) {
	if len(args) != len(oids) {
		return nil, fmt.Errorf("query expects %d parameters, %d were provided", len(oids), len(args))
	}

	_, missing := c.typeMap.KnownOIDs(oids)
	if len(missing) > 0 {
		if err := c.typeMap.Refresh(ctx, missing); err != nil && c.shouldLog(LogLevelWarn) {
			c.log(ctx, LogLevelWarn, "type refresh failed", map[string]interface{}{"oids": missing, "error": err})
		}
	}

	params := make([][]byte, len(args))
	for i, arg := range args {
		if arg == nil {
			params[i] = nil
			continue
		}

		encoded, err := c.typeMap.EncodeBinary(oids[i], arg, nil)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		params[i] = encoded
	}

	return params, nil
}

// refreshMissingTypes triggers an out-of-band type refresh for result
// column OIDs with no registered codec. Columns that remain unknown
// decode as raw bytes.
func (c *Conn) refreshMissingTypes(ctx context.Context, fields []wire.FieldDescription) {
	var oids []uint32
	for _, f := range fields {
		oids = append(oids, f.DataTypeOID)
	}

	_, missing := c.typeMap.KnownOIDs(oids)
	if len(missing) == 0 {
		return
	}

	if err := c.typeMap.Refresh(ctx, missing); err != nil && c.shouldLog(LogLevelWarn) {
		c.log(ctx, LogLevelWarn, "type refresh failed", map[string]interface{}{"oids": missing, "error": err})
	}
}

// unexpectedEQMessage handles a protocol invariant violation: the
// connection state is unknowable, so it is broken rather than drained.
func (c *Conn) unexpectedEQMessage(ctx context.Context, msg wire.BackendMessage) error {
	err := ProtocolError(fmt.Sprintf("unexpected message %T during extended query", msg))
	c.die(err)
	if c.shouldLog(LogLevelError) {
		c.log(ctx, LogLevelError, "protocol violation", map[string]interface{}{"error": err})
	}
	return err
}
