// Package wire implements encoding and decoding of the PostgreSQL
// frontend/backend protocol, version 3.0.
//
// Each protocol message is a struct with an Encode method that appends
// the framed message to a []byte and, for backend messages, a Decode
// method that parses a message body. A Frontend reads backend messages
// from a stream. Message framing is <tag:1><length:4 big-endian
// including itself><body>; StartupMessage, SSLRequest and
// CancelRequest carry no tag byte.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/chunkreader/v2"
)

// ProtocolVersionNumber is protocol major version 3, minor version 0.
const ProtocolVersionNumber = 196608

// Format codes for parameters and result columns.
const (
	TextFormat   = 0
	BinaryFormat = 1
)

// Message is the interface implemented by every protocol message.
type Message interface {
	// Decode parses the message from a body (the bytes after the
	// length field).
	Decode(data []byte) error

	// Encode appends the complete framed message to dst.
	Encode(dst []byte) []byte
}

// FrontendMessage is a message sent by the client to the server.
type FrontendMessage interface {
	Message
	Frontend()
}

// BackendMessage is a message sent by the server to the client.
type BackendMessage interface {
	Message
	Backend()
}

type invalidMessageLenErr struct {
	messageType string
	expectedLen int
	actualLen   int
}

func (e *invalidMessageLenErr) Error() string {
	return fmt.Sprintf("%s body must have length of %d, but it is %d", e.messageType, e.expectedLen, e.actualLen)
}

type invalidMessageFormatErr struct {
	messageType string
}

func (e *invalidMessageFormatErr) Error() string {
	return fmt.Sprintf("%s body is invalid", e.messageType)
}

// ErrUnknownAuthenticationType occurs when the server requests an
// authentication type this client has no message type for.
var ErrUnknownAuthenticationType = errors.New("unknown authentication type")

// maxMessageBodyLen bounds a single message body. PostgreSQL limits
// messages to 1 GB; anything larger is a corrupt stream.
const maxMessageBodyLen = (1 << 30) - 4

// Frontend acts as a client for the PostgreSQL wire protocol: it sends
// frontend messages and receives backend messages.
type Frontend struct {
	cr *chunkreader.ChunkReader
	w  io.Writer

	// reused backend message instances so the steady state of
	// Receive does not allocate
	authenticationOk           AuthenticationOk
	authenticationCleartext    AuthenticationCleartextPassword
	authenticationMD5          AuthenticationMD5Password
	authenticationGSSContinue  AuthenticationGSSContinue
	authenticationSASL         AuthenticationSASL
	authenticationSASLContinue AuthenticationSASLContinue
	authenticationSASLFinal    AuthenticationSASLFinal
	backendKeyData             BackendKeyData
	bindComplete               BindComplete
	commandComplete            CommandComplete
	dataRow                    DataRow
	emptyQueryResponse         EmptyQueryResponse
	errorResponse              ErrorResponse
	noData                     NoData
	noticeResponse             NoticeResponse
	notificationResponse       NotificationResponse
	parameterDescription       ParameterDescription
	parameterStatus            ParameterStatus
	parseComplete              ParseComplete
	portalSuspended            PortalSuspended
	readyForQuery              ReadyForQuery
	rowDescription             RowDescription

	bodyLen    int
	msgType    byte
	partialMsg bool
}

// NewFrontend creates a Frontend that reads from r and writes to w.
func NewFrontend(r io.Reader, w io.Writer) *Frontend {
	return &Frontend{cr: chunkreader.New(r), w: w}
}

// Send encodes msg and writes it to the underlying writer.
func (f *Frontend) Send(msg FrontendMessage) error {
	_, err := f.w.Write(msg.Encode(nil))
	return err
}

// Receive reads and parses the next backend message. The returned
// message is only valid until the next call to Receive.
func (f *Frontend) Receive() (BackendMessage, error) {
	if !f.partialMsg {
		header, err := f.cr.Next(5)
		if err != nil {
			return nil, err
		}

		f.msgType = header[0]
		f.bodyLen = int(binary.BigEndian.Uint32(header[1:])) - 4
		if f.bodyLen < 0 || f.bodyLen > maxMessageBodyLen {
			return nil, fmt.Errorf("invalid message length for %q message: %d", f.msgType, f.bodyLen+4)
		}
		f.partialMsg = true
	}

	msgBody, err := f.cr.Next(f.bodyLen)
	if err != nil {
		return nil, err
	}
	f.partialMsg = false

	var msg BackendMessage
	switch f.msgType {
	case 'R':
		var err error
		msg, err = f.findAuthenticationMessageType(msgBody)
		if err != nil {
			return nil, err
		}
	case '1':
		msg = &f.parseComplete
	case '2':
		msg = &f.bindComplete
	case 'C':
		msg = &f.commandComplete
	case 'D':
		msg = &f.dataRow
	case 'E':
		msg = &f.errorResponse
	case 'I':
		msg = &f.emptyQueryResponse
	case 'K':
		msg = &f.backendKeyData
	case 'N':
		msg = &f.noticeResponse
	case 'A':
		msg = &f.notificationResponse
	case 'S':
		msg = &f.parameterStatus
	case 'T':
		msg = &f.rowDescription
	case 'Z':
		msg = &f.readyForQuery
	case 'n':
		msg = &f.noData
	case 's':
		msg = &f.portalSuspended
	case 't':
		msg = &f.parameterDescription
	default:
		return nil, fmt.Errorf("unknown message type: %c", f.msgType)
	}

	err = msg.Decode(msgBody)
	return msg, err
}

// Authentication message type codes, shared by the AuthenticationX
// messages under the 'R' tag.
const (
	authTypeOk                = 0
	authTypeKerberosV5        = 2
	authTypeCleartextPassword = 3
	authTypeMD5Password       = 5
	authTypeSCMCredential     = 6
	authTypeGSS               = 7
	authTypeGSSContinue       = 8
	authTypeSSPI              = 9
	authTypeSASL              = 10
	authTypeSASLContinue      = 11
	authTypeSASLFinal         = 12
)

func (f *Frontend) findAuthenticationMessageType(src []byte) (BackendMessage, error) {
	if len(src) < 4 {
		return nil, errors.New("authentication message too short")
	}

	switch binary.BigEndian.Uint32(src[:4]) {
	case authTypeOk:
		return &f.authenticationOk, nil
	case authTypeKerberosV5:
		return &AuthenticationKerberosV5{}, nil
	case authTypeCleartextPassword:
		return &f.authenticationCleartext, nil
	case authTypeMD5Password:
		return &f.authenticationMD5, nil
	case authTypeSCMCredential:
		return &AuthenticationSCMCredential{}, nil
	case authTypeGSS:
		return &AuthenticationGSS{}, nil
	case authTypeGSSContinue:
		return &f.authenticationGSSContinue, nil
	case authTypeSSPI:
		return &AuthenticationSSPI{}, nil
	case authTypeSASL:
		return &f.authenticationSASL, nil
	case authTypeSASLContinue:
		return &f.authenticationSASLContinue, nil
	case authTypeSASLFinal:
		return &f.authenticationSASLFinal, nil
	}

	return nil, ErrUnknownAuthenticationType
}
