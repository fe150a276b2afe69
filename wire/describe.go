package wire

import (
	"bytes"

	"github.com/jackc/pgio"
)

// Describe targets for ObjectType.
const (
	DescribeStatement = 'S'
	DescribePortal    = 'P'
)

// Describe requests a description of a prepared statement
// (ParameterDescription + RowDescription/NoData) or a portal
// (RowDescription/NoData).
type Describe struct {
	ObjectType byte // 'S' = prepared statement, 'P' = portal
	Name       string
}

func (*Describe) Frontend() {}

func (dst *Describe) Decode(src []byte) error {
	if len(src) < 2 {
		return &invalidMessageFormatErr{messageType: "Describe"}
	}

	dst.ObjectType = src[0]
	idx := bytes.IndexByte(src[1:], 0)
	if idx != len(src[1:])-1 {
		return &invalidMessageFormatErr{messageType: "Describe"}
	}
	dst.Name = string(src[1 : len(src)-1])
	return nil
}

func (src *Describe) Encode(dst []byte) []byte {
	dst = append(dst, 'D')
	dst = pgio.AppendInt32(dst, int32(4+1+len(src.Name)+1))
	dst = append(dst, src.ObjectType)
	dst = append(dst, src.Name...)
	dst = append(dst, 0)
	return dst
}
