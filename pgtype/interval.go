package pgtype

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jackc/pgio"
)

// Interval is the decoded form of the interval type. Months and days
// are kept separate because their length in microseconds is not fixed.
type Interval struct {
	Microseconds int64
	Days         int32
	Months       int32
}

// IntervalCodec handles interval: int64 microseconds, int32 days,
// int32 months.
type IntervalCodec struct{}

func (IntervalCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	var iv Interval
	switch v := value.(type) {
	case Interval:
		iv = v
	case time.Duration:
		iv = Interval{Microseconds: int64(v) / 1000}
	default:
		return nil, fmt.Errorf("cannot encode %T into interval", value)
	}

	buf = pgio.AppendInt64(buf, iv.Microseconds)
	buf = pgio.AppendInt32(buf, iv.Days)
	buf = pgio.AppendInt32(buf, iv.Months)
	return buf, nil
}

func (IntervalCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 16 {
		return nil, fmt.Errorf("invalid length for interval: %d", len(src))
	}

	return Interval{
		Microseconds: int64(binary.BigEndian.Uint64(src)),
		Days:         int32(binary.BigEndian.Uint32(src[8:])),
		Months:       int32(binary.BigEndian.Uint32(src[12:])),
	}, nil
}
