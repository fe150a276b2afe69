package pgtype

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// UUIDCodec handles uuid: 16 raw bytes.
type UUIDCodec struct{}

func (UUIDCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return append(buf, v.Bytes()...), nil
	case [16]byte:
		return append(buf, v[:]...), nil
	case []byte:
		if len(v) != 16 {
			return nil, fmt.Errorf("[]byte must be 16 bytes to encode into uuid: %d", len(v))
		}
		return append(buf, v...), nil
	case string:
		u, err := uuid.FromString(v)
		if err != nil {
			return nil, err
		}
		return append(buf, u.Bytes()...), nil
	default:
		return nil, fmt.Errorf("cannot encode %T into uuid", value)
	}
}

func (UUIDCodec) DecodeBinary(src []byte) (any, error) {
	u, err := uuid.FromBytes(src)
	if err != nil {
		return nil, err
	}
	return u, nil
}
