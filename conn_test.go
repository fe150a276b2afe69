package pgo

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectUnauthenticated(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{pgmock.WaitForClose()},
	))
	defer ms.finish()

	conn := mustConnect(t, ms)
	assert.True(t, conn.IsAlive())
	require.NoError(t, conn.Close(context.Background()))
	assert.False(t, conn.IsAlive())
}

func TestConnectCleartextPassword(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationCleartextPassword{}),
		pgmock.ExpectMessage(&pgproto3.PasswordMessage{Password: "secret"}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 42, SecretKey: 7}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	}))
	defer ms.finish()

	conn := mustConnect(t, ms)
	assert.EqualValues(t, 42, conn.PID())
	conn.Close(context.Background())
}

func TestConnectMD5Password(t *testing.T) {
	t.Parallel()

	salt := [4]byte{'a', 'b', 'c', 'd'}
	digested := "md5" + hexMD5(hexMD5("secret"+"pgo_test")+string(salt[:]))

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationMD5Password{Salt: salt}),
		pgmock.ExpectMessage(&pgproto3.PasswordMessage{Password: digested}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 1, SecretKey: 1}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	}))
	defer ms.finish()

	conn := mustConnect(t, ms)
	conn.Close(context.Background())
}

func TestConnectSASLIsNotImplemented(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}}),
	}))
	defer ms.finish()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, ms.config())
	require.Error(t, err)

	var niErr *NotImplementedError
	require.ErrorAs(t, err, &niErr)
	assert.Equal(t, "sasl", niErr.Kind)
}

func TestConnectServerError(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.ErrorResponse{Severity: "FATAL", Code: "28P01", Message: "password authentication failed"}),
	}))
	defer ms.finish()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, ms.config())
	require.Error(t, err)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "28P01", pgErr.Code())
	assert.Equal(t, "password authentication failed", pgErr.Message())
}

func TestConnectSSLRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.ReadFull(conn, make([]byte, 8))
		conn.Write([]byte{'N'})
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	config := &PoolConfig{Host: host, User: "pgo_test"}
	_, err = parsePort(config, portStr)
	require.NoError(t, err)
	config.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Connect(ctx, config)
	require.ErrorIs(t, err, ErrTLSRefused)
}

func TestConnectRejectsFloatDatetimes(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "integer_datetimes", Value: "off"}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 1, SecretKey: 1}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}))
	defer ms.finish()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, ms.config())
	require.Error(t, err)

	var protoErr ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestServerVersion(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script([]pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "server_version", Value: "14.5 (Debian 14.5-1.pgdg110+1)"}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 1, SecretKey: 1}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.WaitForClose(),
	}))
	defer ms.finish()

	conn := mustConnect(t, ms)
	defer conn.Close(context.Background())

	v := conn.ServerVersion()
	require.NotNil(t, v)
	assert.EqualValues(t, 14, v.Major())
	assert.EqualValues(t, 5, v.Minor())
	assert.Equal(t, "14.5 (Debian 14.5-1.pgdg110+1)", conn.ParameterStatus("server_version"))
}

func TestExecSimpleQuery(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{
			pgmock.ExpectMessage(&pgproto3.Query{String: "select 1; select 'two'"}),
			pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
				{Name: []byte("?column?"), DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 0},
			}}),
			pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{[]byte("1")}}),
			pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}),
			pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
				{Name: []byte("?column?"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
			}}),
			pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{[]byte("two")}}),
			pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}),
			pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
			pgmock.WaitForClose(),
		},
	))
	defer ms.finish()

	conn := mustConnect(t, ms)
	defer conn.Close(context.Background())

	results, err := conn.Exec(context.Background(), "select 1; select 'two'")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, VerbSelect, results[0].Command.Verb)
	assert.Equal(t, 1, results[0].NumRows)
	assert.Equal(t, [][]any{{"1"}}, results[0].Rows)
	assert.Equal(t, [][]any{{"two"}}, results[1].Rows)
}

func TestExecSimpleQueryError(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{
			pgmock.ExpectMessage(&pgproto3.Query{String: "select * from missing"}),
			pgmock.SendMessage(&pgproto3.ErrorResponse{Severity: "ERROR", Code: "42P01", Message: "relation does not exist"}),
			pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		},
		simpleExecSteps("select 1", "SELECT 0", 'I'),
		[]pgmock.Step{pgmock.WaitForClose()},
	))
	defer ms.finish()

	conn := mustConnect(t, ms)
	defer conn.Close(context.Background())

	_, err := conn.Exec(context.Background(), "select * from missing")
	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42P01", pgErr.Code())

	// the error was drained to ReadyForQuery; the conn still works
	require.True(t, conn.IsAlive())
	_, err = conn.Exec(context.Background(), "select 1")
	require.NoError(t, err)
}

func TestNotificationForwarding(t *testing.T) {
	t.Parallel()

	var notifications []*Notification

	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{
			pgmock.ExpectMessage(&pgproto3.Query{String: "listen events"}),
			pgmock.SendMessage(&pgproto3.NotificationResponse{PID: 9, Channel: "events", Payload: "hello"}),
			pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("LISTEN")}),
			pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
			pgmock.WaitForClose(),
		},
	))
	defer ms.finish()

	config := ms.config()
	config.OnNotification = func(c *Conn, n *Notification) {
		notifications = append(notifications, n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Connect(ctx, config)
	require.NoError(t, err)
	defer conn.Close(context.Background())

	_, err = conn.Exec(context.Background(), "listen events")
	require.NoError(t, err)

	require.Len(t, notifications, 1)
	assert.Equal(t, "events", notifications[0].Channel)
	assert.Equal(t, "hello", notifications[0].Payload)
	assert.EqualValues(t, 9, notifications[0].PID)
}

func TestContextCancelBreaksConn(t *testing.T) {
	t.Parallel()

	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{
			pgmock.ExpectMessage(&pgproto3.Query{String: "select pg_sleep(10)"}),
			// never replies
			pgmock.WaitForClose(),
		},
	))
	defer ms.finish()

	conn := mustConnect(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Exec(ctx, "select pg_sleep(10)")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || Timeout(err))
	assert.False(t, conn.IsAlive())
}

func parsePort(config *PoolConfig, portStr string) (*PoolConfig, error) {
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return nil, err
	}
	config.Port = uint16(port)
	return config, nil
}
