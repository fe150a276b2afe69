package wire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// AuthenticationOk reports that authentication succeeded (or was not
// required).
type AuthenticationOk struct{}

func (*AuthenticationOk) Backend() {}

func (dst *AuthenticationOk) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationOk", expectedLen: 4, actualLen: len(src)}
	}
	if binary.BigEndian.Uint32(src) != authTypeOk {
		return &invalidMessageFormatErr{messageType: "AuthenticationOk"}
	}
	return nil
}

func (src *AuthenticationOk) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeOk)
	return dst
}

// AuthenticationCleartextPassword requests the password in clear text.
type AuthenticationCleartextPassword struct{}

func (*AuthenticationCleartextPassword) Backend() {}

func (dst *AuthenticationCleartextPassword) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationCleartextPassword", expectedLen: 4, actualLen: len(src)}
	}
	if binary.BigEndian.Uint32(src) != authTypeCleartextPassword {
		return &invalidMessageFormatErr{messageType: "AuthenticationCleartextPassword"}
	}
	return nil
}

func (src *AuthenticationCleartextPassword) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeCleartextPassword)
	return dst
}

// AuthenticationMD5Password requests an md5-hashed password salted
// with Salt.
type AuthenticationMD5Password struct {
	Salt [4]byte
}

func (*AuthenticationMD5Password) Backend() {}

func (dst *AuthenticationMD5Password) Decode(src []byte) error {
	if len(src) != 8 {
		return &invalidMessageLenErr{messageType: "AuthenticationMD5Password", expectedLen: 8, actualLen: len(src)}
	}
	if binary.BigEndian.Uint32(src) != authTypeMD5Password {
		return &invalidMessageFormatErr{messageType: "AuthenticationMD5Password"}
	}
	copy(dst.Salt[:], src[4:8])
	return nil
}

func (src *AuthenticationMD5Password) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 12)
	dst = pgio.AppendUint32(dst, authTypeMD5Password)
	dst = append(dst, src.Salt[:]...)
	return dst
}

// AuthenticationKerberosV5, AuthenticationSCMCredential,
// AuthenticationGSS and AuthenticationSSPI identify authentication
// methods this client does not implement. They decode so the
// connection can fail with a precise error rather than a protocol
// error.
type AuthenticationKerberosV5 struct{}

func (*AuthenticationKerberosV5) Backend() {}

func (dst *AuthenticationKerberosV5) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationKerberosV5", expectedLen: 4, actualLen: len(src)}
	}
	return nil
}

func (src *AuthenticationKerberosV5) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeKerberosV5)
	return dst
}

type AuthenticationSCMCredential struct{}

func (*AuthenticationSCMCredential) Backend() {}

func (dst *AuthenticationSCMCredential) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationSCMCredential", expectedLen: 4, actualLen: len(src)}
	}
	return nil
}

func (src *AuthenticationSCMCredential) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeSCMCredential)
	return dst
}

type AuthenticationGSS struct{}

func (*AuthenticationGSS) Backend() {}

func (dst *AuthenticationGSS) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationGSS", expectedLen: 4, actualLen: len(src)}
	}
	return nil
}

func (src *AuthenticationGSS) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeGSS)
	return dst
}

type AuthenticationSSPI struct{}

func (*AuthenticationSSPI) Backend() {}

func (dst *AuthenticationSSPI) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationSSPI", expectedLen: 4, actualLen: len(src)}
	}
	return nil
}

func (src *AuthenticationSSPI) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, authTypeSSPI)
	return dst
}

// AuthenticationGSSContinue carries GSSAPI or SSPI data from the
// server.
type AuthenticationGSSContinue struct {
	Data []byte
}

func (*AuthenticationGSSContinue) Backend() {}

func (dst *AuthenticationGSSContinue) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationGSSContinue", expectedLen: 4, actualLen: len(src)}
	}
	dst.Data = src[4:]
	return nil
}

func (src *AuthenticationGSSContinue) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, int32(8+len(src.Data)))
	dst = pgio.AppendUint32(dst, authTypeGSSContinue)
	dst = append(dst, src.Data...)
	return dst
}

// AuthenticationSASL requests SASL authentication and advertises the
// mechanisms the server accepts (e.g. SCRAM-SHA-256).
type AuthenticationSASL struct {
	AuthMechanisms []string
}

func (*AuthenticationSASL) Backend() {}

func (dst *AuthenticationSASL) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationSASL", expectedLen: 4, actualLen: len(src)}
	}

	dst.AuthMechanisms = dst.AuthMechanisms[:0]
	rp := 4
	for rp < len(src)-1 {
		end := rp
		for end < len(src) && src[end] != 0 {
			end++
		}
		if end == len(src) {
			return &invalidMessageFormatErr{messageType: "AuthenticationSASL"}
		}
		dst.AuthMechanisms = append(dst.AuthMechanisms, string(src[rp:end]))
		rp = end + 1
	}

	return nil
}

func (src *AuthenticationSASL) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	dst = pgio.AppendUint32(dst, authTypeSASL)
	for _, m := range src.AuthMechanisms {
		dst = append(dst, m...)
		dst = append(dst, 0)
	}
	dst = append(dst, 0)
	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}

// AuthenticationSASLContinue carries a SASL challenge.
type AuthenticationSASLContinue struct {
	Data []byte
}

func (*AuthenticationSASLContinue) Backend() {}

func (dst *AuthenticationSASLContinue) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationSASLContinue", expectedLen: 4, actualLen: len(src)}
	}
	dst.Data = src[4:]
	return nil
}

func (src *AuthenticationSASLContinue) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, int32(8+len(src.Data)))
	dst = pgio.AppendUint32(dst, authTypeSASLContinue)
	dst = append(dst, src.Data...)
	return dst
}

// AuthenticationSASLFinal carries the final SASL server message.
type AuthenticationSASLFinal struct {
	Data []byte
}

func (*AuthenticationSASLFinal) Backend() {}

func (dst *AuthenticationSASLFinal) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationSASLFinal", expectedLen: 4, actualLen: len(src)}
	}
	dst.Data = src[4:]
	return nil
}

func (src *AuthenticationSASLFinal) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, int32(8+len(src.Data)))
	dst = pgio.AppendUint32(dst, authTypeSASLFinal)
	dst = append(dst, src.Data...)
	return dst
}
