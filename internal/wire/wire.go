/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

// Package wire is an encoder and decoder of the PostgreSQL wire protocol version 3.
//
// See https://www.postgresql.org/docs/current/protocol-message-formats.html for meanings of the different messages.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// ProtocolVersionNumber is protocol version 3.0.
	ProtocolVersionNumber = 196608

	sslRequestNumber    = 80877103
	cancelRequestNumber = 80877102
)

// PostgreSQL format codes.
const (
	TextFormatCode   int16 = 0
	BinaryFormatCode int16 = 1
)

// maxMessageBodyLen guards against absurd length headers. A length this large on a
// single message means the stream is corrupt, not that the server sent 1 GB.
const maxMessageBodyLen = 1 << 30

// Message is the interface implemented by an object that can encode itself into the
// PostgreSQL wire format.
type Message interface {
	// Encode appends the encoded message to dst and returns the extended slice.
	Encode(dst []byte) []byte
}

// FrontendMessage is a message sent by the frontend (client).
type FrontendMessage interface {
	Message
	Frontend() // no-op method to distinguish frontend from backend methods
}

// BackendMessage is a message sent by the backend (server).
type BackendMessage interface {
	Message
	Backend() // no-op method to distinguish frontend from backend methods
	Decode(data []byte) error
}

// ProtocolError occurs when unexpected or malformed data is received from the backend.
// The connection is unusable afterwards.
type ProtocolError string

func (e ProtocolError) Error() string {
	return string(e)
}

func errInvalidLength(tag byte, expected, actual int) ProtocolError {
	return ProtocolError(fmt.Sprintf("invalid length for message %c: expected %d, got %d", tag, expected, actual))
}

// header splits the 5 byte tag+length header. bodyLen excludes the length word itself.
func header(buf []byte) (tag byte, bodyLen int, err error) {
	tag = buf[0]
	l := int(binary.BigEndian.Uint32(buf[1:5]))
	if l < 4 || l > maxMessageBodyLen {
		return 0, 0, ProtocolError(fmt.Sprintf("invalid message length %d for message %c", l, tag))
	}
	return tag, l - 4, nil
}

// ParseBackend decodes one backend message from the front of buf. It supports partial
// buffers: when buf does not yet hold a complete message it returns (nil, 0, nil) and the
// caller should retry with more bytes. n is the number of bytes consumed. A malformed
// header or unknown tag is a ProtocolError and the stream cannot be resynchronized.
func ParseBackend(buf []byte) (msg BackendMessage, n int, err error) {
	if len(buf) < 5 {
		return nil, 0, nil
	}
	tag, bodyLen, err := header(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < 5+bodyLen {
		return nil, 0, nil
	}

	body := buf[5 : 5+bodyLen]
	if tag == 'R' {
		msg, err = authMessageForBody(body)
	} else {
		msg, err = backendMessageForTag(tag)
	}
	if err != nil {
		return nil, 0, err
	}
	if err := msg.Decode(body); err != nil {
		return nil, 0, err
	}
	return msg, 5 + bodyLen, nil
}

func authMessageForBody(body []byte) (BackendMessage, error) {
	if len(body) < 4 {
		return nil, ProtocolError("authentication message too short")
	}
	switch code := binary.BigEndian.Uint32(body); code {
	case authTypeOk:
		return &AuthenticationOk{}, nil
	case authTypeCleartextPassword:
		return &AuthenticationCleartextPassword{}, nil
	case authTypeMD5Password:
		return &AuthenticationMD5Password{}, nil
	case authTypeSASL:
		return &AuthenticationSASL{}, nil
	case authTypeSASLContinue:
		return &AuthenticationSASLContinue{}, nil
	case authTypeSASLFinal:
		return &AuthenticationSASLFinal{}, nil
	default:
		return nil, ProtocolError(fmt.Sprintf("unknown authentication type %d", code))
	}
}

func backendMessageForTag(tag byte) (BackendMessage, error) {
	switch tag {
	case 'K':
		return &BackendKeyData{}, nil
	case 'S':
		return &ParameterStatus{}, nil
	case 'Z':
		return &ReadyForQuery{}, nil
	case '1':
		return &ParseComplete{}, nil
	case '2':
		return &BindComplete{}, nil
	case '3':
		return &CloseComplete{}, nil
	case 'n':
		return &NoData{}, nil
	case 't':
		return &ParameterDescription{}, nil
	case 'T':
		return &RowDescription{}, nil
	case 'D':
		return &DataRow{}, nil
	case 'C':
		return &CommandComplete{}, nil
	case 'I':
		return &EmptyQueryResponse{}, nil
	case 's':
		return &PortalSuspended{}, nil
	case 'E':
		return &ErrorResponse{}, nil
	case 'N':
		return &NoticeResponse{}, nil
	case 'A':
		return &NotificationResponse{}, nil
	case 'G':
		return &CopyInResponse{}, nil
	case 'H':
		return &CopyOutResponse{}, nil
	case 'd':
		return &CopyData{}, nil
	case 'c':
		return &CopyDone{}, nil
	default:
		return nil, ProtocolError(fmt.Sprintf("unknown backend message type %c", tag))
	}
}
