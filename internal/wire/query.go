package wire

import (
	"github.com/jackc/pgio"
)

// Query runs one or more semicolon-separated statements through the simple query
// protocol. Parameter placeholders are not available here; the statement binder merges
// literals client-side before building this message.
type Query struct {
	String string
}

func (*Query) Frontend() {}

func (m *Query) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'Q')
	dst = appendCString(dst, m.String)
	return finishMsg(dst, sp)
}

func (m *Query) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.String = rb.cstring()
	return rb.err('Q')
}

// Parse creates a prepared statement. The extended query protocol accepts exactly one
// command per Parse; the backend rejects semicolon-separated batches here.
type Parse struct {
	Name          string
	Query         string
	ParameterOIDs []uint32
}

func (*Parse) Frontend() {}

func (m *Parse) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'P')
	dst = appendCString(dst, m.Name)
	dst = appendCString(dst, m.Query)
	dst = pgio.AppendInt16(dst, int16(len(m.ParameterOIDs)))
	for _, oid := range m.ParameterOIDs {
		dst = pgio.AppendUint32(dst, oid)
	}
	return finishMsg(dst, sp)
}

func (m *Parse) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.Name = rb.cstring()
	m.Query = rb.cstring()
	n := int(rb.int16())
	m.ParameterOIDs = nil
	for i := 0; i < n; i++ {
		m.ParameterOIDs = append(m.ParameterOIDs, rb.uint32())
	}
	return rb.err('P')
}

// Bind binds parameter values to a prepared statement, creating a portal.
type Bind struct {
	DestinationPortal    string
	PreparedStatement    string
	ParameterFormatCodes []int16
	Parameters           [][]byte
	ResultFormatCodes    []int16
}

func (*Bind) Frontend() {}

func (m *Bind) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'B')
	dst = appendCString(dst, m.DestinationPortal)
	dst = appendCString(dst, m.PreparedStatement)

	dst = pgio.AppendInt16(dst, int16(len(m.ParameterFormatCodes)))
	for _, f := range m.ParameterFormatCodes {
		dst = pgio.AppendInt16(dst, f)
	}

	dst = pgio.AppendInt16(dst, int16(len(m.Parameters)))
	for _, p := range m.Parameters {
		if p == nil {
			dst = pgio.AppendInt32(dst, -1)
			continue
		}
		dst = pgio.AppendInt32(dst, int32(len(p)))
		dst = append(dst, p...)
	}

	dst = pgio.AppendInt16(dst, int16(len(m.ResultFormatCodes)))
	for _, f := range m.ResultFormatCodes {
		dst = pgio.AppendInt16(dst, f)
	}
	return finishMsg(dst, sp)
}

func (m *Bind) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.DestinationPortal = rb.cstring()
	m.PreparedStatement = rb.cstring()

	n := int(rb.int16())
	m.ParameterFormatCodes = nil
	for i := 0; i < n; i++ {
		m.ParameterFormatCodes = append(m.ParameterFormatCodes, rb.int16())
	}

	n = int(rb.int16())
	m.Parameters = nil
	for i := 0; i < n; i++ {
		l := rb.int32()
		if l == -1 {
			m.Parameters = append(m.Parameters, nil)
			continue
		}
		m.Parameters = append(m.Parameters, rb.next(int(l)))
	}

	n = int(rb.int16())
	m.ResultFormatCodes = nil
	for i := 0; i < n; i++ {
		m.ResultFormatCodes = append(m.ResultFormatCodes, rb.int16())
	}
	return rb.err('B')
}

// Describe requests a ParameterDescription and RowDescription for a prepared statement
// ('S') or a RowDescription for a portal ('P').
type Describe struct {
	ObjectType byte // 'S' = prepared statement, 'P' = portal
	Name       string
}

func (*Describe) Frontend() {}

func (m *Describe) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'D')
	dst = append(dst, m.ObjectType)
	dst = appendCString(dst, m.Name)
	return finishMsg(dst, sp)
}

func (m *Describe) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.ObjectType = rb.byte()
	m.Name = rb.cstring()
	return rb.err('D')
}

// Execute runs a bound portal. MaxRows of 0 means no limit.
type Execute struct {
	Portal  string
	MaxRows uint32
}

func (*Execute) Frontend() {}

func (m *Execute) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'E')
	dst = appendCString(dst, m.Portal)
	dst = pgio.AppendUint32(dst, m.MaxRows)
	return finishMsg(dst, sp)
}

func (m *Execute) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.Portal = rb.cstring()
	m.MaxRows = rb.uint32()
	return rb.err('E')
}

// Close releases a prepared statement or portal.
type Close struct {
	ObjectType byte // 'S' = prepared statement, 'P' = portal
	Name       string
}

func (*Close) Frontend() {}

func (m *Close) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'C')
	dst = append(dst, m.ObjectType)
	dst = appendCString(dst, m.Name)
	return finishMsg(dst, sp)
}

func (m *Close) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.ObjectType = rb.byte()
	m.Name = rb.cstring()
	return rb.err('C')
}

// Sync closes the current implicit transaction and asks for ReadyForQuery.
type Sync struct{}

func (*Sync) Frontend() {}

func (m *Sync) Encode(dst []byte) []byte {
	return append(dst, 'S', 0, 0, 0, 4)
}

func (m *Sync) Decode(data []byte) error {
	return nil
}

// Flush asks the backend to deliver any pending responses without ending the implicit
// transaction.
type Flush struct{}

func (*Flush) Frontend() {}

func (m *Flush) Encode(dst []byte) []byte {
	return append(dst, 'H', 0, 0, 0, 4)
}

func (m *Flush) Decode(data []byte) error {
	return nil
}
