package pgtype

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jackc/pgio"
)

// The binary formats assume integer_datetimes: microseconds (or for
// date, days) relative to 2000-01-01. The connection rejects servers
// reporting integer_datetimes=off.
const (
	microsecFromUnixEpochToY2K = 946684800 * 1000000
	daysFromUnixEpochToY2K     = 10957

	infinityMicrosecondOffset         = 9223372036854775807
	negativeInfinityMicrosecondOffset = -9223372036854775808
	infinityDayOffset                 = 2147483647
	negativeInfinityDayOffset         = -2147483648
)

// TimestamptzCodec handles timestamptz: int64 microseconds since
// 2000-01-01 00:00:00 UTC.
type TimestamptzCodec struct{}

func (TimestamptzCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	return encodeTimestampMicros(value, buf, "timestamptz")
}

func (TimestamptzCodec) DecodeBinary(src []byte) (any, error) {
	return decodeTimestampMicros(src, "timestamptz", time.UTC)
}

// TimestampCodec handles timestamp (without time zone). Decoded times
// are in UTC; the wall-clock fields are what the server stored.
type TimestampCodec struct{}

func (TimestampCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	return encodeTimestampMicros(value, buf, "timestamp")
}

func (TimestampCodec) DecodeBinary(src []byte) (any, error) {
	return decodeTimestampMicros(src, "timestamp", time.UTC)
}

func encodeTimestampMicros(value any, buf []byte, name string) ([]byte, error) {
	switch v := value.(type) {
	case time.Time:
		micros := v.Unix()*1000000 + int64(v.Nanosecond())/1000 - microsecFromUnixEpochToY2K
		return pgio.AppendInt64(buf, micros), nil
	case InfinityModifier:
		switch v {
		case Infinity:
			return pgio.AppendInt64(buf, infinityMicrosecondOffset), nil
		case NegativeInfinity:
			return pgio.AppendInt64(buf, negativeInfinityMicrosecondOffset), nil
		}
		return nil, fmt.Errorf("cannot encode %v into %s", v, name)
	default:
		return nil, fmt.Errorf("cannot encode %T into %s", value, name)
	}
}

func decodeTimestampMicros(src []byte, name string, loc *time.Location) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("invalid length for %s: %d", name, len(src))
	}

	micros := int64(binary.BigEndian.Uint64(src))
	switch micros {
	case infinityMicrosecondOffset:
		return Infinity, nil
	case negativeInfinityMicrosecondOffset:
		return NegativeInfinity, nil
	}

	micros += microsecFromUnixEpochToY2K
	return time.Unix(micros/1000000, (micros%1000000)*1000).In(loc), nil
}

// DateCodec handles date: int32 days since 2000-01-01.
type DateCodec struct{}

func (DateCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case time.Time:
		tUnix := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC).Unix()
		days := int32(tUnix/86400) - daysFromUnixEpochToY2K
		return pgio.AppendInt32(buf, days), nil
	case InfinityModifier:
		switch v {
		case Infinity:
			return pgio.AppendInt32(buf, infinityDayOffset), nil
		case NegativeInfinity:
			return pgio.AppendInt32(buf, negativeInfinityDayOffset), nil
		}
		return nil, fmt.Errorf("cannot encode %v into date", v)
	default:
		return nil, fmt.Errorf("cannot encode %T into date", value)
	}
}

func (DateCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("invalid length for date: %d", len(src))
	}

	days := int32(binary.BigEndian.Uint32(src))
	switch days {
	case infinityDayOffset:
		return Infinity, nil
	case negativeInfinityDayOffset:
		return NegativeInfinity, nil
	}

	return time.Unix((int64(days)+daysFromUnixEpochToY2K)*86400, 0).UTC(), nil
}
