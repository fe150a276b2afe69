package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/jackc/pgio"
)

// ParameterDescription lists the type OIDs of a prepared statement's
// parameters, in parameter order.
type ParameterDescription struct {
	ParameterOIDs []uint32
}

func (*ParameterDescription) Backend() {}

func (dst *ParameterDescription) Decode(src []byte) error {
	buf := bytes.NewBuffer(src)

	if buf.Len() < 2 {
		return &invalidMessageFormatErr{messageType: "ParameterDescription"}
	}
	parameterCount := int(binary.BigEndian.Uint16(buf.Next(2)))

	if buf.Len() != parameterCount*4 {
		return &invalidMessageFormatErr{messageType: "ParameterDescription"}
	}

	*dst = ParameterDescription{ParameterOIDs: make([]uint32, parameterCount)}
	for i := 0; i < parameterCount; i++ {
		dst.ParameterOIDs[i] = binary.BigEndian.Uint32(buf.Next(4))
	}

	return nil
}

func (src *ParameterDescription) Encode(dst []byte) []byte {
	dst = append(dst, 't')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint16(dst, uint16(len(src.ParameterOIDs)))
	for _, oid := range src.ParameterOIDs {
		dst = pgio.AppendUint32(dst, oid)
	}

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
