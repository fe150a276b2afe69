package wire

import "github.com/jackc/pgio"

// Sync closes the current extended-query exchange. The server answers
// with ReadyForQuery after the pending responses (or after discarding
// them if an error occurred).
type Sync struct{}

func (*Sync) Frontend() {}

func (dst *Sync) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "Sync", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *Sync) Encode(dst []byte) []byte {
	dst = append(dst, 'S')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
