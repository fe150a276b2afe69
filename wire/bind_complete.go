package wire

import "github.com/jackc/pgio"

// BindComplete acknowledges a Bind.
type BindComplete struct{}

func (*BindComplete) Backend() {}

func (dst *BindComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "BindComplete", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *BindComplete) Encode(dst []byte) []byte {
	dst = append(dst, '2')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
