package wire

import (
	"github.com/jackc/pgio"
)

// CopyInResponse acknowledges a COPY ... FROM STDIN command; the frontend must now
// stream CopyData messages.
type CopyInResponse struct {
	OverallFormat     byte
	ColumnFormatCodes []int16
}

func (*CopyInResponse) Backend() {}

func (m *CopyInResponse) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.OverallFormat = rb.byte()
	n := int(rb.int16())
	m.ColumnFormatCodes = nil
	for i := 0; i < n; i++ {
		m.ColumnFormatCodes = append(m.ColumnFormatCodes, rb.int16())
	}
	return rb.err('G')
}

func (m *CopyInResponse) Encode(dst []byte) []byte {
	return encodeCopyResponse(dst, 'G', m.OverallFormat, m.ColumnFormatCodes)
}

// CopyOutResponse acknowledges a COPY ... TO STDOUT command; the backend will now
// stream CopyData messages.
type CopyOutResponse struct {
	OverallFormat     byte
	ColumnFormatCodes []int16
}

func (*CopyOutResponse) Backend() {}

func (m *CopyOutResponse) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.OverallFormat = rb.byte()
	n := int(rb.int16())
	m.ColumnFormatCodes = nil
	for i := 0; i < n; i++ {
		m.ColumnFormatCodes = append(m.ColumnFormatCodes, rb.int16())
	}
	return rb.err('H')
}

func (m *CopyOutResponse) Encode(dst []byte) []byte {
	return encodeCopyResponse(dst, 'H', m.OverallFormat, m.ColumnFormatCodes)
}

func encodeCopyResponse(dst []byte, tag byte, format byte, codes []int16) []byte {
	dst, sp := beginMsg(dst, tag)
	dst = append(dst, format)
	dst = pgio.AppendInt16(dst, int16(len(codes)))
	for _, c := range codes {
		dst = pgio.AppendInt16(dst, c)
	}
	return finishMsg(dst, sp)
}

// CopyData carries one chunk of COPY payload in either direction. Chunk boundaries have
// no semantic meaning; row boundaries may fall anywhere.
type CopyData struct {
	Data []byte
}

func (*CopyData) Backend()  {}
func (*CopyData) Frontend() {}

func (m *CopyData) Decode(data []byte) error {
	m.Data = data
	return nil
}

func (m *CopyData) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'd')
	dst = append(dst, m.Data...)
	return finishMsg(dst, sp)
}

// CopyDone terminates a successful COPY stream in either direction.
type CopyDone struct{}

func (*CopyDone) Backend()  {}
func (*CopyDone) Frontend() {}

func (m *CopyDone) Decode(data []byte) error { return nil }

func (m *CopyDone) Encode(dst []byte) []byte {
	return append(dst, 'c', 0, 0, 0, 4)
}

// CopyFail aborts a COPY IN stream; the backend answers with an ErrorResponse and the
// connection returns to the normal command cycle after ReadyForQuery.
type CopyFail struct {
	Message string
}

func (*CopyFail) Frontend() {}

func (m *CopyFail) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.Message = rb.cstring()
	return rb.err('f')
}

func (m *CopyFail) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'f')
	dst = appendCString(dst, m.Message)
	return finishMsg(dst, sp)
}
