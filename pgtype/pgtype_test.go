package pgtype_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/apd"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanhughes/pgo/pgtype"
)

func roundTrip(t *testing.T, m *pgtype.Map, oid uint32, value any) any {
	t.Helper()

	encoded, err := m.EncodeBinary(oid, value, nil)
	require.NoError(t, err)

	decoded, err := m.DecodeBinary(oid, encoded)
	require.NoError(t, err)
	return decoded
}

func TestScalarRoundTrips(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	assert.Equal(t, true, roundTrip(t, m, pgtype.BoolOID, true))
	assert.Equal(t, false, roundTrip(t, m, pgtype.BoolOID, false))
	assert.Equal(t, int16(-7), roundTrip(t, m, pgtype.Int2OID, int16(-7)))
	assert.Equal(t, int32(123456), roundTrip(t, m, pgtype.Int4OID, int32(123456)))
	assert.Equal(t, int64(math.MaxInt64), roundTrip(t, m, pgtype.Int8OID, int64(math.MaxInt64)))
	assert.Equal(t, float32(1.5), roundTrip(t, m, pgtype.Float4OID, float32(1.5)))
	assert.Equal(t, float64(-2.25), roundTrip(t, m, pgtype.Float8OID, float64(-2.25)))
	assert.Equal(t, "hello", roundTrip(t, m, pgtype.TextOID, "hello"))
	assert.Equal(t, []byte{1, 2, 3}, roundTrip(t, m, pgtype.ByteaOID, []byte{1, 2, 3}))
	assert.Equal(t, uint32(4242), roundTrip(t, m, pgtype.OIDOID, uint32(4242)))
}

func TestIntEncodeRangeChecks(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	_, err := m.EncodeBinary(pgtype.Int2OID, math.MaxInt16+1, nil)
	assert.Error(t, err)

	_, err = m.EncodeBinary(pgtype.Int4OID, int64(math.MaxInt32)+1, nil)
	assert.Error(t, err)

	_, err = m.EncodeBinary(pgtype.Int8OID, "not a number", nil)
	assert.Error(t, err)
}

func TestTimestamptzRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	in := time.Date(2023, 4, 5, 6, 7, 8, 9000, time.UTC)
	out := roundTrip(t, m, pgtype.TimestamptzOID, in)
	assert.True(t, in.Equal(out.(time.Time)))

	// microsecond resolution is the wire limit
	in = time.Date(1999, 12, 31, 23, 59, 59, 999999000, time.UTC)
	out = roundTrip(t, m, pgtype.TimestampOID, in)
	assert.True(t, in.Equal(out.(time.Time)))
}

func TestTimestampInfinity(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	out := roundTrip(t, m, pgtype.TimestamptzOID, pgtype.Infinity)
	assert.Equal(t, pgtype.Infinity, out)

	out = roundTrip(t, m, pgtype.TimestamptzOID, pgtype.NegativeInfinity)
	assert.Equal(t, pgtype.NegativeInfinity, out)
}

func TestDateRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	in := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	out := roundTrip(t, m, pgtype.DateOID, in)
	assert.True(t, in.Equal(out.(time.Time)))

	in = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	out = roundTrip(t, m, pgtype.DateOID, in)
	assert.True(t, in.Equal(out.(time.Time)))
}

func TestIntervalRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	in := pgtype.Interval{Microseconds: 123456, Days: 2, Months: -1}
	assert.Equal(t, in, roundTrip(t, m, pgtype.IntervalOID, in))

	out := roundTrip(t, m, pgtype.IntervalOID, 90*time.Minute)
	assert.Equal(t, pgtype.Interval{Microseconds: int64(90 * time.Minute / time.Microsecond)}, out)
}

func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	u := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, u, roundTrip(t, m, pgtype.UUIDOID, u))
	assert.Equal(t, u, roundTrip(t, m, pgtype.UUIDOID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
}

func TestNumericRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	tests := []*apd.Decimal{
		apd.New(0, 0),
		apd.New(1, 0),
		apd.New(-1, 0),
		apd.New(1234567890123456, -4), // 123456789012.3456
		apd.New(1, 4),                 // 10000
		apd.New(-5, -1),               // -0.5
		apd.New(10001, -4),            // 1.0001
	}

	for _, in := range tests {
		out := roundTrip(t, m, pgtype.NumericOID, in)
		num, ok := out.(pgtype.Numeric)
		require.True(t, ok)
		require.False(t, num.NaN)
		assert.Zerof(t, num.Decimal.Cmp(in), "want %s, got %s", in.String(), num.Decimal.String())
	}
}

func TestNumericNaN(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	out := roundTrip(t, m, pgtype.NumericOID, pgtype.Numeric{NaN: true})
	num, ok := out.(pgtype.Numeric)
	require.True(t, ok)
	assert.True(t, num.NaN)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	doc := json.RawMessage(`{"a":1}`)
	assert.Equal(t, doc, roundTrip(t, m, pgtype.JSONOID, doc))
	assert.Equal(t, doc, roundTrip(t, m, pgtype.JSONBOID, doc))

	// arbitrary values marshal
	out := roundTrip(t, m, pgtype.JSONBOID, map[string]int{"n": 3})
	assert.JSONEq(t, `{"n":3}`, string(out.(json.RawMessage)))
}

func TestUnknownOIDPassesThroughRaw(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	decoded, err := m.DecodeBinary(999999, []byte{0xca, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, decoded)
}

func TestEncodeUnknownOID(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	// raw bytes round-trip into an unregistered type
	encoded, err := m.EncodeBinary(999999, []byte{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, encoded)

	_, err = m.EncodeBinary(999999, "typed value", nil)
	assert.ErrorIs(t, err, pgtype.ErrNoCodec)
}

func TestOIDForValue(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	tests := []struct {
		value any
		oid   uint32
	}{
		{true, pgtype.BoolOID},
		{int16(1), pgtype.Int2OID},
		{int32(1), pgtype.Int4OID},
		{int(1), pgtype.Int8OID},
		{int64(1), pgtype.Int8OID},
		{float32(1), pgtype.Float4OID},
		{float64(1), pgtype.Float8OID},
		{"s", pgtype.TextOID},
		{[]byte{1}, pgtype.ByteaOID},
		{json.RawMessage(`{}`), pgtype.JSONBOID},
		{time.Now(), pgtype.TimestamptzOID},
		{time.Second, pgtype.IntervalOID},
		{uuid.UUID{}, pgtype.UUIDOID},
		{apd.New(1, 0), pgtype.NumericOID},
	}

	for _, tt := range tests {
		oid, ok := m.OIDForValue(tt.value)
		require.Truef(t, ok, "value %T", tt.value)
		assert.Equalf(t, tt.oid, oid, "value %T", tt.value)
	}

	_, ok := m.OIDForValue(nil)
	assert.False(t, ok)
	_, ok = m.OIDForValue(map[string]string{})
	assert.False(t, ok)
	_, ok = m.OIDForValue([]int{1})
	assert.False(t, ok)
}

func TestBindRequiresStatementDescription(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	assert.False(t, m.BindRequiresStatementDescription([]any{1, "x", true}))
	assert.True(t, m.BindRequiresStatementDescription([]any{1, nil}))
	assert.True(t, m.BindRequiresStatementDescription([]any{[]string{"polymorphic"}}))
}

func TestRegisterDataTypeSnapshot(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	const enumOID = 70000
	_, ok := m.DataTypeForOID(enumOID)
	require.False(t, ok)

	m.RegisterDataType(pgtype.DataType{Name: "mood", OID: enumOID, Codec: pgtype.TextCodec{}})

	dt, ok := m.DataTypeForOID(enumOID)
	require.True(t, ok)
	assert.Equal(t, "mood", dt.Name)

	byName, ok := m.DataTypeForName("mood")
	require.True(t, ok)
	assert.EqualValues(t, enumOID, byName.OID)
}

func TestKnownOIDs(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	known, missing := m.KnownOIDs([]uint32{pgtype.TextOID, 888888, pgtype.BoolOID})
	assert.Equal(t, []uint32{pgtype.TextOID, pgtype.BoolOID}, known)
	assert.Equal(t, []uint32{888888}, missing)
}

func TestRefreshHook(t *testing.T) {
	t.Parallel()

	m := pgtype.NewMap()

	var got []uint32
	m.SetRefresh(func(ctx context.Context, oids []uint32) error {
		got = oids
		m.RegisterDataType(pgtype.DataType{Name: "custom", OID: oids[0], Codec: pgtype.TextCodec{}})
		return nil
	})

	require.NoError(t, m.Refresh(context.Background(), []uint32{55555}))
	assert.Equal(t, []uint32{55555}, got)

	_, ok := m.DataTypeForOID(55555)
	assert.True(t, ok)
}
