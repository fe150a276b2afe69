package pgtype

import "fmt"

// BoolCodec handles the bool type: one byte, 0 or 1.
type BoolCodec struct{}

func (BoolCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	v, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("cannot encode %T into bool", value)
	}

	if v {
		return append(buf, 1), nil
	}
	return append(buf, 0), nil
}

func (BoolCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("invalid length for bool: %d", len(src))
	}
	return src[0] == 1, nil
}
