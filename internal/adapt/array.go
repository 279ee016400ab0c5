package adapt

import (
	"encoding/binary"
	"math"

	"github.com/jackc/pgio"

	"pgcore/internal/wire"
)

// Arrays use the binary wire format in both directions. The layout is: ndim, hasnull
// flag, element OID, then per dimension (length, lower bound), then per element a length
// word followed by the element payload (-1 for NULL). Only one-dimensional arrays are
// produced; multi-dimensional input flattens on load.

func appendArrayHeader(buf []byte, elemOID uint32, n int) []byte {
	buf = pgio.AppendInt32(buf, 1) // ndim
	buf = pgio.AppendInt32(buf, 0) // hasnull
	buf = pgio.AppendUint32(buf, elemOID)
	buf = pgio.AppendInt32(buf, int32(n)) // dimension length
	buf = pgio.AppendInt32(buf, 1)        // lower bound
	return buf
}

type int4ArrayDumper struct{}

func (int4ArrayDumper) OID() uint32   { return Int4ArrayOID }
func (int4ArrayDumper) Format() int16 { return wire.BinaryFormatCode }

func (int4ArrayDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	vals := v.([]int32)
	buf = appendArrayHeader(buf, Int4OID, len(vals))
	for _, n := range vals {
		buf = pgio.AppendInt32(buf, 4)
		buf = pgio.AppendInt32(buf, n)
	}
	return buf, nil
}

type int8ArrayDumper struct{}

func (int8ArrayDumper) OID() uint32   { return Int8ArrayOID }
func (int8ArrayDumper) Format() int16 { return wire.BinaryFormatCode }

func (int8ArrayDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	vals := v.([]int64)
	buf = appendArrayHeader(buf, Int8OID, len(vals))
	for _, n := range vals {
		buf = pgio.AppendInt32(buf, 8)
		buf = pgio.AppendInt64(buf, n)
	}
	return buf, nil
}

type textArrayDumper struct{}

func (textArrayDumper) OID() uint32   { return TextArrayOID }
func (textArrayDumper) Format() int16 { return wire.BinaryFormatCode }

func (textArrayDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	vals := v.([]string)
	buf = appendArrayHeader(buf, TextOID, len(vals))
	for _, s := range vals {
		buf = pgio.AppendInt32(buf, int32(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

type float8ArrayDumper struct{}

func (float8ArrayDumper) OID() uint32   { return Float8ArrayOID }
func (float8ArrayDumper) Format() int16 { return wire.BinaryFormatCode }

func (float8ArrayDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	vals := v.([]float64)
	buf = appendArrayHeader(buf, Float8OID, len(vals))
	for _, f := range vals {
		buf = pgio.AppendInt32(buf, 8)
		buf = pgio.AppendUint64(buf, math.Float64bits(f))
	}
	return buf, nil
}

// arrayLoader loads a binary array of a fixed element OID, flattening dimensions. Text
// format arrays are not supported; the registry requests binary results for array OIDs.
type arrayLoader struct {
	elemOID uint32
}

func (l arrayLoader) Load(data []byte, format int16) (interface{}, error) {
	if format != wire.BinaryFormatCode {
		return nil, &LoadError{OID: l.elemOID, Format: format, Reason: "array text format not supported"}
	}
	if len(data) < 12 {
		return nil, &LoadError{OID: l.elemOID, Format: format, Reason: "invalid array header"}
	}

	ndim := int(int32(binary.BigEndian.Uint32(data)))
	elemOID := binary.BigEndian.Uint32(data[8:])
	if elemOID != l.elemOID {
		return nil, &LoadError{OID: l.elemOID, Format: format, Reason: "unexpected element oid"}
	}

	n := 1
	pos := 12
	for i := 0; i < ndim; i++ {
		if len(data) < pos+8 {
			return nil, &LoadError{OID: l.elemOID, Format: format, Reason: "truncated dimensions"}
		}
		n *= int(int32(binary.BigEndian.Uint32(data[pos:])))
		pos += 8
	}
	if ndim == 0 {
		n = 0
	}

	switch l.elemOID {
	case Int4OID:
		out := make([]int32, 0, n)
		err := eachElement(data[pos:], n, 4, l.elemOID, func(elem []byte) {
			out = append(out, int32(binary.BigEndian.Uint32(elem)))
		})
		return out, err
	case Int8OID:
		out := make([]int64, 0, n)
		err := eachElement(data[pos:], n, 8, l.elemOID, func(elem []byte) {
			out = append(out, int64(binary.BigEndian.Uint64(elem)))
		})
		return out, err
	case Float8OID:
		out := make([]float64, 0, n)
		err := eachElement(data[pos:], n, 8, l.elemOID, func(elem []byte) {
			out = append(out, math.Float64frombits(binary.BigEndian.Uint64(elem)))
		})
		return out, err
	case TextOID:
		out := make([]string, 0, n)
		err := eachElement(data[pos:], n, -1, l.elemOID, func(elem []byte) {
			out = append(out, string(elem))
		})
		return out, err
	}
	return nil, &LoadError{OID: l.elemOID, Format: format, Reason: "unsupported element oid"}
}

// eachElement walks n length-prefixed elements. fixedLen of -1 allows variable length.
// NULL elements are rejected; the built-in array adapters map to plain Go slices which
// have no NULL representation.
func eachElement(data []byte, n, fixedLen int, oid uint32, f func(elem []byte)) error {
	pos := 0
	for i := 0; i < n; i++ {
		if len(data) < pos+4 {
			return &LoadError{OID: oid, Format: wire.BinaryFormatCode, Reason: "truncated element"}
		}
		l := int(int32(binary.BigEndian.Uint32(data[pos:])))
		pos += 4
		if l == -1 {
			return &LoadError{OID: oid, Format: wire.BinaryFormatCode, Reason: "NULL array element"}
		}
		if fixedLen != -1 && l != fixedLen {
			return &LoadError{OID: oid, Format: wire.BinaryFormatCode, Reason: "unexpected element length"}
		}
		if len(data) < pos+l {
			return &LoadError{OID: oid, Format: wire.BinaryFormatCode, Reason: "truncated element"}
		}
		f(data[pos : pos+l])
		pos += l
	}
	return nil
}
