package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Backend is the server side of the connection. It decodes frontend messages from cr and
// writes backend messages to w. It exists to let tests script a PostgreSQL server over an
// in-memory pipe; it is not a full server implementation.
type Backend struct {
	cr ChunkReader
	w  io.Writer
}

// NewBackend creates a Backend.
func NewBackend(cr ChunkReader, w io.Writer) *Backend {
	return &Backend{cr: cr, w: w}
}

// Send writes a single backend message.
func (b *Backend) Send(msg BackendMessage) error {
	_, err := b.w.Write(msg.Encode(nil))
	return err
}

// ReceiveStartupMessage reads the initial untagged message: a StartupMessage, SSLRequest
// or CancelRequest, distinguished by the version/request code.
func (b *Backend) ReceiveStartupMessage() (FrontendMessage, error) {
	hdr, err := b.cr.Next(4)
	if err != nil {
		return nil, err
	}
	l := int(binary.BigEndian.Uint32(hdr))
	if l < 8 || l > maxMessageBodyLen {
		return nil, ProtocolError(fmt.Sprintf("invalid startup message length %d", l))
	}

	body, err := b.cr.Next(l - 4)
	if err != nil {
		return nil, err
	}

	switch code := binary.BigEndian.Uint32(body); code {
	case sslRequestNumber:
		return &SSLRequest{}, nil
	case cancelRequestNumber:
		rb := readBuf{data: body[4:]}
		m := &CancelRequest{ProcessID: rb.uint32(), SecretKey: rb.uint32()}
		return m, rb.err(0)
	default:
		m := &StartupMessage{}
		if err := m.Decode(body); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Receive decodes the next regular frontend message.
func (b *Backend) Receive() (FrontendMessage, error) {
	hdr, err := b.cr.Next(5)
	if err != nil {
		return nil, err
	}

	tag := hdr[0]
	l := int(binary.BigEndian.Uint32(hdr[1:5]))
	if l < 4 || l > maxMessageBodyLen {
		return nil, ProtocolError(fmt.Sprintf("invalid message length %d for message %c", l, tag))
	}

	body, err := b.cr.Next(l - 4)
	if err != nil {
		return nil, err
	}

	var msg interface {
		FrontendMessage
		Decode(data []byte) error
	}
	switch tag {
	case 'Q':
		msg = &Query{}
	case 'P':
		msg = &Parse{}
	case 'B':
		msg = &Bind{}
	case 'D':
		msg = &Describe{}
	case 'E':
		msg = &Execute{}
	case 'C':
		msg = &Close{}
	case 'S':
		msg = &Sync{}
	case 'H':
		msg = &Flush{}
	case 'p':
		msg = &PasswordMessage{}
	case 'd':
		msg = &CopyData{}
	case 'c':
		msg = &CopyDone{}
	case 'f':
		msg = &CopyFail{}
	case 'X':
		msg = &Terminate{}
	default:
		return nil, ProtocolError(fmt.Sprintf("unknown frontend message type %c", tag))
	}

	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}
