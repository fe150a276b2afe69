package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/jackc/pgio"
)

// StartupParameter is one key/value pair of a StartupMessage. Order is
// preserved on the wire.
type StartupParameter struct {
	Key   string
	Value string
}

// StartupMessage opens a session. It has no tag byte; the protocol
// version number doubles as the message discriminator.
type StartupMessage struct {
	ProtocolVersion uint32
	Parameters      []StartupParameter
}

func (*StartupMessage) Frontend() {}

func (dst *StartupMessage) Decode(src []byte) error {
	if len(src) < 4 {
		return errors.New("startup message too short")
	}

	dst.ProtocolVersion = binary.BigEndian.Uint32(src)
	rp := 4

	dst.Parameters = nil
	for {
		idx := bytes.IndexByte(src[rp:], 0)
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "StartupMessage"}
		}
		key := string(src[rp : rp+idx])
		rp += idx + 1

		if key == "" {
			break
		}

		idx = bytes.IndexByte(src[rp:], 0)
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "StartupMessage"}
		}
		dst.Parameters = append(dst.Parameters, StartupParameter{Key: key, Value: string(src[rp : rp+idx])})
		rp += idx + 1
	}

	return nil
}

func (src *StartupMessage) Encode(dst []byte) []byte {
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint32(dst, src.ProtocolVersion)
	for _, p := range src.Parameters {
		dst = append(dst, p.Key...)
		dst = append(dst, 0)
		dst = append(dst, p.Value...)
		dst = append(dst, 0)
	}
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
