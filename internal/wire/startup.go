package wire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// StartupMessage is the first message sent on a connection. It has no tag byte.
type StartupMessage struct {
	ProtocolVersion uint32
	Parameters      map[string]string
}

func (*StartupMessage) Frontend() {}

func (m *StartupMessage) Encode(dst []byte) []byte {
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint32(dst, m.ProtocolVersion)
	for k, v := range m.Parameters {
		dst = appendCString(dst, k)
		dst = appendCString(dst, v)
	}
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst)-sp))
	return dst
}

func (m *StartupMessage) Decode(data []byte) error {
	if len(data) < 4 {
		return ProtocolError("startup message too short")
	}
	m.ProtocolVersion = binary.BigEndian.Uint32(data)
	rb := readBuf{data: data[4:]}

	m.Parameters = make(map[string]string)
	for len(rb.data) > 1 {
		k := rb.cstring()
		v := rb.cstring()
		if rb.bad {
			return ProtocolError("malformed startup message parameters")
		}
		m.Parameters[k] = v
	}
	return nil
}

// SSLRequest asks the server to begin TLS negotiation. The server answers with a single
// 'S' or 'N' byte rather than a regular message.
type SSLRequest struct{}

func (*SSLRequest) Frontend() {}

func (m *SSLRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 8)
	return pgio.AppendUint32(dst, sslRequestNumber)
}

// CancelRequest is sent on a dedicated connection to request cancellation of the query
// currently running on the connection identified by ProcessID and SecretKey.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (*CancelRequest) Frontend() {}

func (m *CancelRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 16)
	dst = pgio.AppendUint32(dst, cancelRequestNumber)
	dst = pgio.AppendUint32(dst, m.ProcessID)
	return pgio.AppendUint32(dst, m.SecretKey)
}

// Terminate announces an orderly connection shutdown.
type Terminate struct{}

func (*Terminate) Frontend() {}

func (m *Terminate) Encode(dst []byte) []byte {
	return append(dst, 'X', 0, 0, 0, 4)
}

func (m *Terminate) Decode(data []byte) error { return nil }
