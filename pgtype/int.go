package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jackc/pgio"
)

// Int2Codec handles int2 (smallint).
type Int2Codec struct{}

func (Int2Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, fmt.Errorf("int2: %w", err)
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return nil, fmt.Errorf("%d is out of range for int2", n)
	}
	return pgio.AppendInt16(buf, int16(n)), nil
}

func (Int2Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 2 {
		return nil, fmt.Errorf("invalid length for int2: %d", len(src))
	}
	return int16(binary.BigEndian.Uint16(src)), nil
}

// Int4Codec handles int4 (integer).
type Int4Codec struct{}

func (Int4Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, fmt.Errorf("int4: %w", err)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%d is out of range for int4", n)
	}
	return pgio.AppendInt32(buf, int32(n)), nil
}

func (Int4Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("invalid length for int4: %d", len(src))
	}
	return int32(binary.BigEndian.Uint32(src)), nil
}

// Int8Codec handles int8 (bigint).
type Int8Codec struct{}

func (Int8Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, fmt.Errorf("int8: %w", err)
	}
	return pgio.AppendInt64(buf, n), nil
}

func (Int8Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("invalid length for int8: %d", len(src))
	}
	return int64(binary.BigEndian.Uint64(src)), nil
}

// OIDCodec handles the oid type: an unsigned 32-bit catalog
// identifier.
type OIDCodec struct{}

func (OIDCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case uint32:
		return pgio.AppendUint32(buf, v), nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, fmt.Errorf("oid: %w", err)
		}
		if n < 0 || n > math.MaxUint32 {
			return nil, fmt.Errorf("%d is out of range for oid", n)
		}
		return pgio.AppendUint32(buf, uint32(n)), nil
	}
}

func (OIDCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("invalid length for oid: %d", len(src))
	}
	return binary.BigEndian.Uint32(src), nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d is out of range for int64", v)
		}
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("%d is out of range for int64", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}
