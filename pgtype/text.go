package pgtype

import "fmt"

// TextCodec handles text, varchar, bpchar, name and unknown: the wire
// value is the string bytes.
type TextCodec struct{}

func (TextCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return append(buf, v...), nil
	case []byte:
		return append(buf, v...), nil
	case fmt.Stringer:
		return append(buf, v.String()...), nil
	default:
		return nil, fmt.Errorf("cannot encode %T into text", value)
	}
}

func (TextCodec) DecodeBinary(src []byte) (any, error) {
	return string(src), nil
}

// ByteaCodec handles bytea: raw bytes.
type ByteaCodec struct{}

func (ByteaCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append(buf, v...), nil
	case string:
		return append(buf, v...), nil
	default:
		return nil, fmt.Errorf("cannot encode %T into bytea", value)
	}
}

func (ByteaCodec) DecodeBinary(src []byte) (any, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// QCharCodec handles "char" (the single-byte internal type, OID 18).
type QCharCodec struct{}

func (QCharCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case byte:
		return append(buf, v), nil
	case rune:
		if v > 255 {
			return nil, fmt.Errorf("%v does not fit in \"char\"", v)
		}
		return append(buf, byte(v)), nil
	case string:
		if len(v) != 1 {
			return nil, fmt.Errorf("%q does not fit in \"char\"", v)
		}
		return append(buf, v[0]), nil
	default:
		return nil, fmt.Errorf("cannot encode %T into \"char\"", value)
	}
}

func (QCharCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) > 1 {
		return nil, fmt.Errorf("invalid length for \"char\": %d", len(src))
	}
	if len(src) == 0 {
		return byte(0), nil
	}
	return src[0], nil
}
