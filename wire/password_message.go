package wire

import (
	"bytes"

	"github.com/jackc/pgio"
)

// PasswordMessage carries a cleartext password or an md5 digest
// ("md5" + hex digest), depending on what the server requested.
type PasswordMessage struct {
	Password string
}

func (*PasswordMessage) Frontend() {}

func (dst *PasswordMessage) Decode(src []byte) error {
	idx := bytes.IndexByte(src, 0)
	if idx != len(src)-1 {
		return &invalidMessageFormatErr{messageType: "PasswordMessage"}
	}
	dst.Password = string(src[:idx])
	return nil
}

func (src *PasswordMessage) Encode(dst []byte) []byte {
	dst = append(dst, 'p')
	dst = pgio.AppendInt32(dst, int32(4+len(src.Password)+1))
	dst = append(dst, src.Password...)
	dst = append(dst, 0)
	return dst
}
