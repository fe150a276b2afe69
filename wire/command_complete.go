package wire

import (
	"bytes"

	"github.com/jackc/pgio"
)

// CommandComplete ends a successful command. CommandTag is the raw tag
// string, e.g. "SELECT 3" or "INSERT 0 1".
type CommandComplete struct {
	CommandTag []byte
}

func (*CommandComplete) Backend() {}

func (dst *CommandComplete) Decode(src []byte) error {
	idx := bytes.IndexByte(src, 0)
	if idx != len(src)-1 {
		return &invalidMessageFormatErr{messageType: "CommandComplete"}
	}
	dst.CommandTag = src[:idx]
	return nil
}

func (src *CommandComplete) Encode(dst []byte) []byte {
	dst = append(dst, 'C')
	dst = pgio.AppendInt32(dst, int32(4+len(src.CommandTag)+1))
	dst = append(dst, src.CommandTag...)
	dst = append(dst, 0)
	return dst
}
