package wire

import (
	"strconv"
)

// ErrorResponse reports a backend error. Field meanings are documented at
// https://www.postgresql.org/docs/current/protocol-error-fields.html.
type ErrorResponse struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string

	UnknownFields map[byte]string
}

func (*ErrorResponse) Backend() {}

func (m *ErrorResponse) Decode(data []byte) error {
	return m.decodeFields(data, 'E')
}

func (m *ErrorResponse) decodeFields(data []byte, tag byte) error {
	rb := readBuf{data: data}
	for {
		fieldType := rb.byte()
		if rb.bad {
			return ProtocolError("malformed message body for message " + string(tag))
		}
		if fieldType == 0 {
			return nil
		}
		value := rb.cstring()
		if rb.bad {
			return ProtocolError("malformed message body for message " + string(tag))
		}

		switch fieldType {
		case 'S':
			m.Severity = value
		case 'C':
			m.Code = value
		case 'M':
			m.Message = value
		case 'D':
			m.Detail = value
		case 'H':
			m.Hint = value
		case 'P':
			n, _ := strconv.ParseInt(value, 10, 32)
			m.Position = int32(n)
		case 'p':
			n, _ := strconv.ParseInt(value, 10, 32)
			m.InternalPosition = int32(n)
		case 'q':
			m.InternalQuery = value
		case 'W':
			m.Where = value
		case 's':
			m.SchemaName = value
		case 't':
			m.TableName = value
		case 'c':
			m.ColumnName = value
		case 'd':
			m.DataTypeName = value
		case 'n':
			m.ConstraintName = value
		case 'F':
			m.File = value
		case 'L':
			n, _ := strconv.ParseInt(value, 10, 32)
			m.Line = int32(n)
		case 'R':
			m.Routine = value
		default:
			if m.UnknownFields == nil {
				m.UnknownFields = make(map[byte]string)
			}
			m.UnknownFields[fieldType] = value
		}
	}
}

func (m *ErrorResponse) Encode(dst []byte) []byte {
	return m.encodeFields(dst, 'E')
}

func (m *ErrorResponse) encodeFields(dst []byte, tag byte) []byte {
	dst, sp := beginMsg(dst, tag)

	appendField := func(fieldType byte, value string) {
		if value == "" {
			return
		}
		dst = append(dst, fieldType)
		dst = appendCString(dst, value)
	}

	appendField('S', m.Severity)
	appendField('C', m.Code)
	appendField('M', m.Message)
	appendField('D', m.Detail)
	appendField('H', m.Hint)
	if m.Position != 0 {
		appendField('P', strconv.FormatInt(int64(m.Position), 10))
	}
	if m.InternalPosition != 0 {
		appendField('p', strconv.FormatInt(int64(m.InternalPosition), 10))
	}
	appendField('q', m.InternalQuery)
	appendField('W', m.Where)
	appendField('s', m.SchemaName)
	appendField('t', m.TableName)
	appendField('c', m.ColumnName)
	appendField('d', m.DataTypeName)
	appendField('n', m.ConstraintName)
	appendField('F', m.File)
	if m.Line != 0 {
		appendField('L', strconv.FormatInt(int64(m.Line), 10))
	}
	appendField('R', m.Routine)
	for fieldType, value := range m.UnknownFields {
		appendField(fieldType, value)
	}

	dst = append(dst, 0)
	return finishMsg(dst, sp)
}

// NoticeResponse has the same layout as ErrorResponse but does not abort the current
// command.
type NoticeResponse ErrorResponse

func (*NoticeResponse) Backend() {}

func (m *NoticeResponse) Decode(data []byte) error {
	return (*ErrorResponse)(m).decodeFields(data, 'N')
}

func (m *NoticeResponse) Encode(dst []byte) []byte {
	return (*ErrorResponse)(m).encodeFields(dst, 'N')
}
