package wire

import "github.com/jackc/pgio"

// ParseComplete acknowledges a Parse.
type ParseComplete struct{}

func (*ParseComplete) Backend() {}

func (dst *ParseComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "ParseComplete", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *ParseComplete) Encode(dst []byte) []byte {
	dst = append(dst, '1')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
