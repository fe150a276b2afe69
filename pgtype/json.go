package pgtype

import (
	"encoding/json"
	"fmt"
)

// JSONCodec handles json: the wire value is the document bytes.
// Decoded values are json.RawMessage.
type JSONCodec struct{}

func (JSONCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	return appendJSON(value, buf)
}

func (JSONCodec) DecodeBinary(src []byte) (any, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return json.RawMessage(out), nil
}

// JSONBCodec handles jsonb: a one-byte version prefix followed by the
// document bytes.
type JSONBCodec struct{}

func (JSONBCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	buf = append(buf, 1)
	return appendJSON(value, buf)
}

func (JSONBCodec) DecodeBinary(src []byte) (any, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("jsonb too short")
	}
	if src[0] != 1 {
		return nil, fmt.Errorf("unknown jsonb version number %d", src[0])
	}

	out := make([]byte, len(src)-1)
	copy(out, src[1:])
	return json.RawMessage(out), nil
}

func appendJSON(value any, buf []byte) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return append(buf, v...), nil
	case []byte:
		return append(buf, v...), nil
	case string:
		return append(buf, v...), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}
