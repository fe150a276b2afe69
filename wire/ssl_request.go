package wire

import (
	"encoding/binary"
	"errors"

	"github.com/jackc/pgio"
)

const sslRequestNumber = 80877103

// SSLRequest probes whether the server will accept a TLS connection.
// The server answers with a single byte: 'S' to proceed or 'N' to
// refuse. No tag byte, fixed 8-byte length.
type SSLRequest struct{}

func (*SSLRequest) Frontend() {}

func (dst *SSLRequest) Decode(src []byte) error {
	if len(src) != 4 {
		return errors.New("ssl request wrong size")
	}
	if binary.BigEndian.Uint32(src) != sslRequestNumber {
		return errors.New("bad ssl request code")
	}
	return nil
}

func (src *SSLRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendInt32(dst, sslRequestNumber)
	return dst
}
