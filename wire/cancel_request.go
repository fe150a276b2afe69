package wire

import (
	"encoding/binary"
	"errors"

	"github.com/jackc/pgio"
)

const cancelRequestCode = 80877102

// CancelRequest asks the server to cancel the in-progress query of the
// backend identified by ProcessID/SecretKey. It is sent on a fresh
// connection, never on the one running the query. No tag byte.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (*CancelRequest) Frontend() {}

func (dst *CancelRequest) Decode(src []byte) error {
	if len(src) != 12 {
		return errors.New("cancel request wrong size")
	}
	if binary.BigEndian.Uint32(src) != cancelRequestCode {
		return errors.New("bad cancel request code")
	}
	dst.ProcessID = binary.BigEndian.Uint32(src[4:])
	dst.SecretKey = binary.BigEndian.Uint32(src[8:])
	return nil
}

func (src *CancelRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 16)
	dst = pgio.AppendInt32(dst, cancelRequestCode)
	dst = pgio.AppendUint32(dst, src.ProcessID)
	dst = pgio.AppendUint32(dst, src.SecretKey)
	return dst
}
