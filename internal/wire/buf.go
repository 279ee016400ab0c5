package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/jackc/pgio"
)

// readBuf consumes a message body front to back. Out-of-bounds reads flip the bad flag
// instead of panicking so Decode implementations can check once at the end.
type readBuf struct {
	data []byte
	bad  bool
}

func (rb *readBuf) byte() byte {
	if len(rb.data) < 1 {
		rb.bad = true
		return 0
	}
	b := rb.data[0]
	rb.data = rb.data[1:]
	return b
}

func (rb *readBuf) int16() int16 {
	if len(rb.data) < 2 {
		rb.bad = true
		return 0
	}
	n := int16(binary.BigEndian.Uint16(rb.data))
	rb.data = rb.data[2:]
	return n
}

func (rb *readBuf) uint32() uint32 {
	if len(rb.data) < 4 {
		rb.bad = true
		return 0
	}
	n := binary.BigEndian.Uint32(rb.data)
	rb.data = rb.data[4:]
	return n
}

func (rb *readBuf) int32() int32 {
	return int32(rb.uint32())
}

func (rb *readBuf) cstring() string {
	idx := bytes.IndexByte(rb.data, 0)
	if idx < 0 {
		rb.bad = true
		return ""
	}
	s := string(rb.data[:idx])
	rb.data = rb.data[idx+1:]
	return s
}

func (rb *readBuf) next(n int) []byte {
	if n < 0 || len(rb.data) < n {
		rb.bad = true
		return nil
	}
	b := rb.data[:n:n]
	rb.data = rb.data[n:]
	return b
}

func (rb *readBuf) err(tag byte) error {
	if rb.bad {
		return ProtocolError("malformed message body for message " + string(tag))
	}
	return nil
}

// beginMsg appends the tag and a length placeholder, returning the extended buffer and
// the position of the length word for finishMsg.
func beginMsg(dst []byte, tag byte) ([]byte, int) {
	dst = append(dst, tag)
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	return dst, sp
}

func finishMsg(dst []byte, sp int) []byte {
	pgio.SetInt32(dst[sp:], int32(len(dst)-sp))
	return dst
}

func appendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}
