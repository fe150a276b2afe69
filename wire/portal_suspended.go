package wire

import "github.com/jackc/pgio"

// PortalSuspended reports that Execute hit its MaxRows limit before
// the portal ran dry.
type PortalSuspended struct{}

func (*PortalSuspended) Backend() {}

func (dst *PortalSuspended) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "PortalSuspended", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *PortalSuspended) Encode(dst []byte) []byte {
	dst = append(dst, 's')
	dst = pgio.AppendInt32(dst, 4)
	return dst
}
