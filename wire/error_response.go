package wire

import (
	"bytes"
	"sort"

	"github.com/jackc/pgio"
)

// Error and notice field codes, as defined by the protocol. The field
// map of an ErrorResponse/NoticeResponse is keyed by these bytes.
const (
	ErrFieldSeverity            = 'S'
	ErrFieldSeverityUnlocalized = 'V'
	ErrFieldCode                = 'C'
	ErrFieldMessage             = 'M'
	ErrFieldDetail              = 'D'
	ErrFieldHint                = 'H'
	ErrFieldPosition            = 'P'
	ErrFieldInternalPosition    = 'p'
	ErrFieldInternalQuery       = 'q'
	ErrFieldWhere               = 'W'
	ErrFieldSchemaName          = 's'
	ErrFieldTableName           = 't'
	ErrFieldColumnName          = 'c'
	ErrFieldDataTypeName        = 'd'
	ErrFieldConstraintName      = 'n'
	ErrFieldFile                = 'F'
	ErrFieldLine                = 'L'
	ErrFieldRoutine             = 'R'
)

// ErrorResponse reports a server error. Fields holds every field
// exactly as received, keyed by the single-byte field code.
type ErrorResponse struct {
	Fields map[byte]string
}

func (*ErrorResponse) Backend() {}

func (dst *ErrorResponse) Decode(src []byte) error {
	fields, err := decodeErrorNoticeFields(src, "ErrorResponse")
	if err != nil {
		return err
	}
	dst.Fields = fields
	return nil
}

func (src *ErrorResponse) Encode(dst []byte) []byte {
	return encodeErrorNoticeFields(dst, 'E', src.Fields)
}

// NoticeResponse is a warning or informational message. Same layout as
// ErrorResponse.
type NoticeResponse struct {
	Fields map[byte]string
}

func (*NoticeResponse) Backend() {}

func (dst *NoticeResponse) Decode(src []byte) error {
	fields, err := decodeErrorNoticeFields(src, "NoticeResponse")
	if err != nil {
		return err
	}
	dst.Fields = fields
	return nil
}

func (src *NoticeResponse) Encode(dst []byte) []byte {
	return encodeErrorNoticeFields(dst, 'N', src.Fields)
}

func decodeErrorNoticeFields(src []byte, messageType string) (map[byte]string, error) {
	fields := make(map[byte]string)

	rp := 0
	for {
		if rp >= len(src) {
			return nil, &invalidMessageFormatErr{messageType: messageType}
		}

		code := src[rp]
		rp++
		if code == 0 {
			return fields, nil
		}

		idx := bytes.IndexByte(src[rp:], 0)
		if idx < 0 {
			return nil, &invalidMessageFormatErr{messageType: messageType}
		}
		fields[code] = string(src[rp : rp+idx])
		rp += idx + 1
	}
}

func encodeErrorNoticeFields(dst []byte, tag byte, fields map[byte]string) []byte {
	dst = append(dst, tag)
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	// deterministic order
	codes := make([]byte, 0, len(fields))
	for code := range fields {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	for _, code := range codes {
		dst = append(dst, code)
		dst = append(dst, fields[code]...)
		dst = append(dst, 0)
	}
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
