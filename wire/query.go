package wire

import (
	"bytes"

	"github.com/jackc/pgio"
)

// Query executes sql via the simple query protocol. sql may contain
// multiple statements separated by semicolons.
type Query struct {
	String string
}

func (*Query) Frontend() {}

func (dst *Query) Decode(src []byte) error {
	idx := bytes.IndexByte(src, 0)
	if idx != len(src)-1 {
		return &invalidMessageFormatErr{messageType: "Query"}
	}
	dst.String = string(src[:idx])
	return nil
}

func (src *Query) Encode(dst []byte) []byte {
	dst = append(dst, 'Q')
	dst = pgio.AppendInt32(dst, int32(4+len(src.String)+1))
	dst = append(dst, src.String...)
	dst = append(dst, 0)
	return dst
}
