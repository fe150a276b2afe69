package pgo

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanhughes/pgo/pgtype"
)

func TestStartPoolDuplicateName(t *testing.T) {
	_, err := StartPool("dup", &PoolConfig{Host: "localhost", User: "u"})
	require.NoError(t, err)
	defer StopPool("dup")

	_, err = StartPool("dup", &PoolConfig{Host: "localhost", User: "u"})
	assert.Error(t, err)
}

func TestGetPoolUnknown(t *testing.T) {
	t.Parallel()

	_, err := GetPool("no-such-pool")
	assert.Error(t, err)
}

func TestQueryUsesDefaultPool(t *testing.T) {
	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		extendedSelectSteps("n", pgtype.Int4OID, []byte{0, 0, 0, 1}, "SELECT 1"),
		[]pgmock.Step{pgmock.WaitForClose()},
	))
	defer ms.finish()

	pool, err := StartPool(DefaultPoolName, ms.config())
	require.NoError(t, err)
	defer StopPool(DefaultPoolName)

	result, err := Query(context.Background(), "select 1::int4")
	require.NoError(t, err)

	assert.Equal(t, VerbSelect, result.Command.Verb)
	assert.Equal(t, 1, result.NumRows)
	assert.Equal(t, [][]any{{int32(1)}}, result.Rows)
	assert.GreaterOrEqual(t, result.QueueTime, time.Duration(0))

	// the query's connection is back in the pool
	stat := pool.Stat()
	assert.Equal(t, 1, stat.Ready)
	assert.Equal(t, 0, stat.CheckedOut)
}

func TestQueryExNamedPoolWithMaps(t *testing.T) {
	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		extendedSelectSteps("greeting", pgtype.TextOID, []byte("hi"), "SELECT 1"),
		[]pgmock.Step{pgmock.WaitForClose()},
	))
	defer ms.finish()

	_, err := StartPool("named", ms.config())
	require.NoError(t, err)
	defer StopPool("named")

	result, err := QueryEx(context.Background(), "select 'hi' as greeting", nil, &QueryExOptions{
		Pool:      "named",
		QueryOpts: QueryOpts{RowsAsMaps: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi"}, result.Maps[0])
}

func TestPackageCheckoutCheckin(t *testing.T) {
	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
		[]pgmock.Step{pgmock.WaitForClose()},
	))
	defer ms.finish()

	pool, err := StartPool("pkgco", ms.config())
	require.NoError(t, err)
	defer StopPool("pkgco")

	ref, conn, err := Checkout(context.Background(), "pkgco", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stat().CheckedOut)

	Checkin(ref, conn)
	assert.Equal(t, 0, pool.Stat().CheckedOut)
	assert.Equal(t, 1, pool.Stat().Ready)
}

func TestPackageBreakPooledConn(t *testing.T) {
	ms := newMockServer(t, script(
		pgmock.AcceptUnauthenticatedConnRequestSteps(),
	))
	defer ms.finish()

	pool, err := StartPool("pkgbreak", ms.config())
	require.NoError(t, err)
	defer StopPool("pkgbreak")

	_, conn, err := Checkout(context.Background(), "pkgbreak", nil)
	require.NoError(t, err)

	Break(conn)
	assert.False(t, conn.IsAlive())
	assert.Equal(t, 0, pool.Stat().CheckedOut)
	assert.Equal(t, 0, pool.Stat().Ready)
}
