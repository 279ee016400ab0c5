package wire

import (
	"github.com/jackc/pgio"
)

// BackendKeyData carries the process ID and secret key used by CancelRequest.
type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

func (*BackendKeyData) Backend() {}

func (m *BackendKeyData) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.ProcessID = rb.uint32()
	m.SecretKey = rb.uint32()
	return rb.err('K')
}

func (m *BackendKeyData) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'K')
	dst = pgio.AppendUint32(dst, m.ProcessID)
	dst = pgio.AppendUint32(dst, m.SecretKey)
	return finishMsg(dst, sp)
}

// ParameterStatus reports a run-time parameter value, sent at startup and whenever the
// value changes.
type ParameterStatus struct {
	Name  string
	Value string
}

func (*ParameterStatus) Backend() {}

func (m *ParameterStatus) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.Name = rb.cstring()
	m.Value = rb.cstring()
	return rb.err('S')
}

func (m *ParameterStatus) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'S')
	dst = appendCString(dst, m.Name)
	dst = appendCString(dst, m.Value)
	return finishMsg(dst, sp)
}

// ReadyForQuery ends an exchange. TxStatus is 'I' (idle), 'T' (in transaction) or
// 'E' (in failed transaction).
type ReadyForQuery struct {
	TxStatus byte
}

func (*ReadyForQuery) Backend() {}

func (m *ReadyForQuery) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.TxStatus = rb.byte()
	return rb.err('Z')
}

func (m *ReadyForQuery) Encode(dst []byte) []byte {
	return append(dst, 'Z', 0, 0, 0, 5, m.TxStatus)
}

// ParseComplete acknowledges a Parse.
type ParseComplete struct{}

func (*ParseComplete) Backend() {}

func (m *ParseComplete) Decode(data []byte) error { return nil }

func (m *ParseComplete) Encode(dst []byte) []byte {
	return append(dst, '1', 0, 0, 0, 4)
}

// BindComplete acknowledges a Bind.
type BindComplete struct{}

func (*BindComplete) Backend() {}

func (m *BindComplete) Decode(data []byte) error { return nil }

func (m *BindComplete) Encode(dst []byte) []byte {
	return append(dst, '2', 0, 0, 0, 4)
}

// CloseComplete acknowledges a Close.
type CloseComplete struct{}

func (*CloseComplete) Backend() {}

func (m *CloseComplete) Decode(data []byte) error { return nil }

func (m *CloseComplete) Encode(dst []byte) []byte {
	return append(dst, '3', 0, 0, 0, 4)
}

// NoData is sent in place of a RowDescription when the described statement returns no
// rows.
type NoData struct{}

func (*NoData) Backend() {}

func (m *NoData) Decode(data []byte) error { return nil }

func (m *NoData) Encode(dst []byte) []byte {
	return append(dst, 'n', 0, 0, 0, 4)
}

// ParameterDescription reports the resolved parameter type OIDs of a described
// prepared statement.
type ParameterDescription struct {
	ParameterOIDs []uint32
}

func (*ParameterDescription) Backend() {}

func (m *ParameterDescription) Decode(data []byte) error {
	rb := readBuf{data: data}
	n := int(rb.int16())
	m.ParameterOIDs = nil
	for i := 0; i < n; i++ {
		m.ParameterOIDs = append(m.ParameterOIDs, rb.uint32())
	}
	return rb.err('t')
}

func (m *ParameterDescription) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 't')
	dst = pgio.AppendInt16(dst, int16(len(m.ParameterOIDs)))
	for _, oid := range m.ParameterOIDs {
		dst = pgio.AppendUint32(dst, oid)
	}
	return finishMsg(dst, sp)
}

// FieldDescription describes one result column.
type FieldDescription struct {
	Name                 string
	TableOID             uint32
	TableAttributeNumber int16
	DataTypeOID          uint32
	DataTypeSize         int16
	TypeModifier         int32
	Format               int16
}

// RowDescription describes the columns of the rows that follow.
type RowDescription struct {
	Fields []FieldDescription
}

func (*RowDescription) Backend() {}

func (m *RowDescription) Decode(data []byte) error {
	rb := readBuf{data: data}
	n := int(rb.int16())
	m.Fields = make([]FieldDescription, 0, n)
	for i := 0; i < n; i++ {
		m.Fields = append(m.Fields, FieldDescription{
			Name:                 rb.cstring(),
			TableOID:             rb.uint32(),
			TableAttributeNumber: rb.int16(),
			DataTypeOID:          rb.uint32(),
			DataTypeSize:         rb.int16(),
			TypeModifier:         rb.int32(),
			Format:               rb.int16(),
		})
	}
	return rb.err('T')
}

func (m *RowDescription) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'T')
	dst = pgio.AppendInt16(dst, int16(len(m.Fields)))
	for _, f := range m.Fields {
		dst = appendCString(dst, f.Name)
		dst = pgio.AppendUint32(dst, f.TableOID)
		dst = pgio.AppendInt16(dst, f.TableAttributeNumber)
		dst = pgio.AppendUint32(dst, f.DataTypeOID)
		dst = pgio.AppendInt16(dst, f.DataTypeSize)
		dst = pgio.AppendInt32(dst, f.TypeModifier)
		dst = pgio.AppendInt16(dst, f.Format)
	}
	return finishMsg(dst, sp)
}

// DataRow carries one result row. A nil value is SQL NULL.
type DataRow struct {
	Values [][]byte
}

func (*DataRow) Backend() {}

func (m *DataRow) Decode(data []byte) error {
	rb := readBuf{data: data}
	n := int(rb.int16())
	m.Values = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		l := rb.int32()
		if l == -1 {
			m.Values = append(m.Values, nil)
			continue
		}
		m.Values = append(m.Values, rb.next(int(l)))
	}
	return rb.err('D')
}

func (m *DataRow) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'D')
	dst = pgio.AppendInt16(dst, int16(len(m.Values)))
	for _, v := range m.Values {
		if v == nil {
			dst = pgio.AppendInt32(dst, -1)
			continue
		}
		dst = pgio.AppendInt32(dst, int32(len(v)))
		dst = append(dst, v...)
	}
	return finishMsg(dst, sp)
}

// CommandComplete ends the result stream of one statement.
type CommandComplete struct {
	CommandTag []byte
}

func (*CommandComplete) Backend() {}

func (m *CommandComplete) Decode(data []byte) error {
	if len(data) < 1 || data[len(data)-1] != 0 {
		return ProtocolError("malformed message body for message C")
	}
	m.CommandTag = data[:len(data)-1]
	return nil
}

func (m *CommandComplete) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'C')
	dst = append(dst, m.CommandTag...)
	dst = append(dst, 0)
	return finishMsg(dst, sp)
}

// EmptyQueryResponse replaces CommandComplete for an empty query string.
type EmptyQueryResponse struct{}

func (*EmptyQueryResponse) Backend() {}

func (m *EmptyQueryResponse) Decode(data []byte) error { return nil }

func (m *EmptyQueryResponse) Encode(dst []byte) []byte {
	return append(dst, 'I', 0, 0, 0, 4)
}

// PortalSuspended is sent instead of CommandComplete when Execute's row limit was
// reached before the portal was exhausted.
type PortalSuspended struct{}

func (*PortalSuspended) Backend() {}

func (m *PortalSuspended) Decode(data []byte) error { return nil }

func (m *PortalSuspended) Encode(dst []byte) []byte {
	return append(dst, 's', 0, 0, 0, 4)
}

// NotificationResponse delivers a LISTEN/NOTIFY notification.
type NotificationResponse struct {
	PID     uint32
	Channel string
	Payload string
}

func (*NotificationResponse) Backend() {}

func (m *NotificationResponse) Decode(data []byte) error {
	rb := readBuf{data: data}
	m.PID = rb.uint32()
	m.Channel = rb.cstring()
	m.Payload = rb.cstring()
	return rb.err('A')
}

func (m *NotificationResponse) Encode(dst []byte) []byte {
	dst, sp := beginMsg(dst, 'A')
	dst = pgio.AppendUint32(dst, m.PID)
	dst = appendCString(dst, m.Channel)
	dst = appendCString(dst, m.Payload)
	return finishMsg(dst, sp)
}
