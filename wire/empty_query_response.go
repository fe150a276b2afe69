package wire

import "github.com/jackc/pgio"

// EmptyQueryResponse substitutes for CommandComplete when the query
// string was empty.
type EmptyQueryResponse struct{}

func (*EmptyQueryResponse) Backend() {}

func (dst *EmptyQueryResponse) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "EmptyQueryResponse", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *EmptyQueryResponse) Encode(dst []byte) []byte {
	dst = append(dst, 'I')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
