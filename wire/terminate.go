package wire

import "github.com/jackc/pgio"

// Terminate announces an orderly shutdown of the session.
type Terminate struct{}

func (*Terminate) Frontend() {}

func (dst *Terminate) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "Terminate", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *Terminate) Encode(dst []byte) []byte {
	dst = append(dst, 'X')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
