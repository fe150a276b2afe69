package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jackc/pgio"
)

// Float4Codec handles float4 (real).
type Float4Codec struct{}

func (Float4Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case float32:
		return pgio.AppendUint32(buf, math.Float32bits(v)), nil
	case float64:
		return pgio.AppendUint32(buf, math.Float32bits(float32(v))), nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, fmt.Errorf("cannot encode %T into float4", value)
		}
		return pgio.AppendUint32(buf, math.Float32bits(float32(n))), nil
	}
}

func (Float4Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("invalid length for float4: %d", len(src))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(src)), nil
}

// Float8Codec handles float8 (double precision).
type Float8Codec struct{}

func (Float8Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case float64:
		return pgio.AppendUint64(buf, math.Float64bits(v)), nil
	case float32:
		return pgio.AppendUint64(buf, math.Float64bits(float64(v))), nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, fmt.Errorf("cannot encode %T into float8", value)
		}
		return pgio.AppendUint64(buf, math.Float64bits(float64(n))), nil
	}
}

func (Float8Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("invalid length for float8: %d", len(src))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(src)), nil
}
