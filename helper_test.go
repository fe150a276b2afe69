package pgo

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/require"
)

// mockServer runs one scripted backend per accepted connection.
// Scripts are consumed in accept order.
type mockServer struct {
	t     *testing.T
	ln    net.Listener
	errCh chan error
	done  chan struct{}
}

func newMockServer(t *testing.T, scripts ...*pgmock.Script) *mockServer {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err)

	ms := &mockServer{
		t:     t,
		ln:    ln,
		errCh: make(chan error, len(scripts)),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(ms.done)
		for _, s := range scripts {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			conn.SetDeadline(time.Now().Add(5 * time.Second))
			backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
			err = s.Run(backend)
			conn.Close()
			if err != nil {
				ms.errCh <- err
				return
			}
		}
	}()

	return ms
}

func (ms *mockServer) config() *PoolConfig {
	host, portStr, err := net.SplitHostPort(ms.ln.Addr().String())
	require.NoError(ms.t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(ms.t, err)

	return &PoolConfig{
		Host:            host,
		Port:            uint16(port),
		User:            "pgo_test",
		Password:        "secret",
		Database:        "pgo_test",
		CheckoutTimeout: 5 * time.Second,
	}
}

// finish stops listening and reports any script failure.
func (ms *mockServer) finish() {
	ms.ln.Close()
	<-ms.done
	select {
	case err := <-ms.errCh:
		ms.t.Errorf("mock server script failed: %v", err)
	default:
	}
}

func mustConnect(t *testing.T, ms *mockServer) *Conn {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, ms.config())
	require.NoError(t, err)
	return conn
}

// extendedSelectSteps is the backend side of a successful extended
// query returning a single row with one binary column.
func extendedSelectSteps(colName string, oid uint32, value []byte, tag string) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.Parse{}),
		pgmock.ExpectAnyMessage(&pgproto3.Bind{}),
		pgmock.ExpectAnyMessage(&pgproto3.Describe{}),
		pgmock.ExpectAnyMessage(&pgproto3.Execute{}),
		pgmock.ExpectAnyMessage(&pgproto3.Sync{}),
		pgmock.SendMessage(&pgproto3.ParseComplete{}),
		pgmock.SendMessage(&pgproto3.BindComplete{}),
		pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
			{
				Name:         []byte(colName),
				DataTypeOID:  oid,
				DataTypeSize: -1,
				TypeModifier: -1,
				Format:       1,
			},
		}}),
		pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{value}}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(tag)}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
}

func simpleExecSteps(sql, tag string, txStatus byte) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: sql}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(tag)}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: txStatus}),
	}
}

func script(stepGroups ...[]pgmock.Step) *pgmock.Script {
	s := &pgmock.Script{}
	for _, group := range stepGroups {
		s.Steps = append(s.Steps, group...)
	}
	return s
}
