/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkReader is an interface to decouple from any particular buffered reader
// implementation.
type ChunkReader interface {
	// Next returns buf of exactly n bytes. buf is only valid until the next call to Next.
	Next(n int) (buf []byte, err error)
}

// Frontend is the client side of the connection. It decodes backend messages from cr and
// writes frontend messages to w.
type Frontend struct {
	cr ChunkReader
	w  io.Writer

	msgType    byte
	bodyLen    int
	partialMsg bool
}

// NewFrontend creates a Frontend.
func NewFrontend(cr ChunkReader, w io.Writer) *Frontend {
	return &Frontend{cr: cr, w: w}
}

// Send writes a single frontend message. The connection engine usually batches several
// encoded messages into one write instead; Send exists for the simple cases.
func (f *Frontend) Send(msg FrontendMessage) error {
	_, err := f.w.Write(msg.Encode(nil))
	return err
}

// Receive decodes the next backend message. It blocks on the underlying reader; a
// partially received message is resumed on the next call after a read timeout.
func (f *Frontend) Receive() (BackendMessage, error) {
	if !f.partialMsg {
		hdr, err := f.cr.Next(5)
		if err != nil {
			return nil, err
		}

		f.msgType = hdr[0]
		l := int(binary.BigEndian.Uint32(hdr[1:5]))
		if l < 4 || l > maxMessageBodyLen {
			return nil, ProtocolError(fmt.Sprintf("invalid message length %d for message %c", l, f.msgType))
		}
		f.bodyLen = l - 4
		f.partialMsg = true
	}

	body, err := f.cr.Next(f.bodyLen)
	if err != nil {
		return nil, err
	}
	f.partialMsg = false

	var msg BackendMessage
	if f.msgType == 'R' {
		msg, err = authMessageForBody(body)
	} else {
		msg, err = backendMessageForTag(f.msgType)
	}
	if err != nil {
		return nil, err
	}

	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}
