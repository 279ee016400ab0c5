package adapt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgio"
	"github.com/shopspring/decimal"

	"pgcore/internal/wire"
)

func (r *Registry) registerBuiltins() {
	r.RegisterDump(false, boolDumper{})
	r.RegisterDump(int(0), int8Dumper{})
	r.RegisterDump(int8(0), int2Dumper{})
	r.RegisterDump(int16(0), int2Dumper{})
	r.RegisterDump(int32(0), int4Dumper{})
	r.RegisterDump(int64(0), int8Dumper{})
	r.RegisterDump(uint(0), uint8Dumper{})
	r.RegisterDump(uint16(0), int4Dumper{})
	r.RegisterDump(uint32(0), int8Dumper{})
	r.RegisterDump(uint64(0), uint8Dumper{})
	r.RegisterDump(float32(0), float4Dumper{})
	r.RegisterDump(float64(0), float8Dumper{})
	r.RegisterDump("", textDumper{})
	r.RegisterDump([]byte(nil), byteaDumper{})
	r.RegisterDump(time.Time{}, timestamptzDumper{})
	r.RegisterDump(decimal.Decimal{}, numericDumper{})
	r.RegisterDump(uuid.UUID{}, uuidDumper{})
	r.RegisterDump([]int32(nil), int4ArrayDumper{})
	r.RegisterDump([]int64(nil), int8ArrayDumper{})
	r.RegisterDump([]string(nil), textArrayDumper{})
	r.RegisterDump([]float64(nil), float8ArrayDumper{})

	r.RegisterLoad(BoolOID, boolLoader{}, true)
	r.RegisterLoad(Int2OID, intLoader{oid: Int2OID, size: 2}, true)
	r.RegisterLoad(Int4OID, intLoader{oid: Int4OID, size: 4}, true)
	r.RegisterLoad(Int8OID, intLoader{oid: Int8OID, size: 8}, true)
	r.RegisterLoad(OIDOID, intLoader{oid: OIDOID, size: 4}, true)
	r.RegisterLoad(Float4OID, floatLoader{oid: Float4OID, size: 4}, true)
	r.RegisterLoad(Float8OID, floatLoader{oid: Float8OID, size: 8}, true)
	r.RegisterLoad(TextOID, textLoader{}, false)
	r.RegisterLoad(VarcharOID, textLoader{}, false)
	r.RegisterLoad(BPCharOID, textLoader{}, false)
	r.RegisterLoad(NameOID, textLoader{}, false)
	r.RegisterLoad(ByteaOID, byteaLoader{}, true)
	r.RegisterLoad(DateOID, dateLoader{}, true)
	r.RegisterLoad(TimestampOID, timestampLoader{oid: TimestampOID}, true)
	r.RegisterLoad(TimestamptzOID, timestampLoader{oid: TimestamptzOID}, true)
	r.RegisterLoad(NumericOID, numericLoader{}, true)
	r.RegisterLoad(UUIDOID, uuidLoader{}, true)
	r.RegisterLoad(Int4ArrayOID, arrayLoader{elemOID: Int4OID}, true)
	r.RegisterLoad(Int8ArrayOID, arrayLoader{elemOID: Int8OID}, true)
	r.RegisterLoad(TextArrayOID, arrayLoader{elemOID: TextOID}, true)
	r.RegisterLoad(Float8ArrayOID, arrayLoader{elemOID: Float8OID}, true)
}

// derefPointer unwraps one pointer level. ok is false when v is not a pointer. A nil
// pointer unwraps to nil (SQL NULL).
func derefPointer(v interface{}) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return nil, false
	}
	if rv.IsNil() {
		return nil, true
	}
	return rv.Elem().Interface(), true
}

func stringifyFallback(v interface{}) (string, bool) {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	}
	return "", false
}

type boolDumper struct{}

func (boolDumper) OID() uint32   { return BoolOID }
func (boolDumper) Format() int16 { return wire.BinaryFormatCode }

func (boolDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	if v.(bool) {
		return append(buf, 1), nil
	}
	return append(buf, 0), nil
}

func asInt64(v interface{}) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, &DumpError{Value: v, Msg: "overflows int8"}
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, &DumpError{Value: v, Msg: "overflows int8"}
		}
		return int64(v), nil
	}
	return 0, &DumpError{Value: v, Msg: "not an integer"}
}

type int2Dumper struct{}

func (int2Dumper) OID() uint32   { return Int2OID }
func (int2Dumper) Format() int16 { return wire.BinaryFormatCode }

func (int2Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	return pgio.AppendInt16(buf, int16(n)), nil
}

type int4Dumper struct{}

func (int4Dumper) OID() uint32   { return Int4OID }
func (int4Dumper) Format() int16 { return wire.BinaryFormatCode }

func (int4Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	return pgio.AppendInt32(buf, int32(n)), nil
}

type int8Dumper struct{}

func (int8Dumper) OID() uint32   { return Int8OID }
func (int8Dumper) Format() int16 { return wire.BinaryFormatCode }

func (int8Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	return pgio.AppendInt64(buf, n), nil
}

// uint8Dumper handles uint and uint64, which may exceed int8 range.
type uint8Dumper struct{}

func (uint8Dumper) OID() uint32   { return Int8OID }
func (uint8Dumper) Format() int16 { return wire.BinaryFormatCode }

func (uint8Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	return pgio.AppendInt64(buf, n), nil
}

type float4Dumper struct{}

func (float4Dumper) OID() uint32   { return Float4OID }
func (float4Dumper) Format() int16 { return wire.BinaryFormatCode }

func (float4Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	return pgio.AppendUint32(buf, math.Float32bits(v.(float32))), nil
}

type float8Dumper struct{}

func (float8Dumper) OID() uint32   { return Float8OID }
func (float8Dumper) Format() int16 { return wire.BinaryFormatCode }

func (float8Dumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	return pgio.AppendUint64(buf, math.Float64bits(v.(float64))), nil
}

// textDumper sends strings with unknown OID so `select $1` style queries work without an
// explicit cast wherever the server can infer a type.
type textDumper struct{}

func (textDumper) OID() uint32   { return UnknownOID }
func (textDumper) Format() int16 { return wire.TextFormatCode }

func (textDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	return append(buf, v.(string)...), nil
}

type byteaDumper struct{}

func (byteaDumper) OID() uint32   { return ByteaOID }
func (byteaDumper) Format() int16 { return wire.BinaryFormatCode }

func (byteaDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	return append(buf, v.([]byte)...), nil
}

type boolLoader struct{}

func (boolLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.BinaryFormatCode {
		if len(data) != 1 {
			return nil, &LoadError{OID: BoolOID, Format: format, Reason: "invalid length"}
		}
		return data[0] == 1, nil
	}
	switch string(data) {
	case "t":
		return true, nil
	case "f":
		return false, nil
	}
	return nil, &LoadError{OID: BoolOID, Format: format, Reason: "invalid bool text " + string(data)}
}

type intLoader struct {
	oid  uint32
	size int
}

func (l intLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.TextFormatCode {
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return nil, &LoadError{OID: l.oid, Format: format, Reason: err.Error()}
		}
		return n, nil
	}
	if len(data) != l.size {
		return nil, &LoadError{OID: l.oid, Format: format, Reason: "invalid length"}
	}
	switch l.size {
	case 2:
		return int64(int16(binary.BigEndian.Uint16(data))), nil
	case 4:
		return int64(int32(binary.BigEndian.Uint32(data))), nil
	default:
		return int64(binary.BigEndian.Uint64(data)), nil
	}
}

type floatLoader struct {
	oid  uint32
	size int
}

func (l floatLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.TextFormatCode {
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil, &LoadError{OID: l.oid, Format: format, Reason: err.Error()}
		}
		return f, nil
	}
	if len(data) != l.size {
		return nil, &LoadError{OID: l.oid, Format: format, Reason: "invalid length"}
	}
	if l.size == 4 {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

type textLoader struct{}

func (textLoader) Load(data []byte, format int16) (interface{}, error) {
	return string(data), nil
}

type byteaLoader struct{}

func (byteaLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.BinaryFormatCode {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	if len(data) < 2 || data[0] != '\\' || data[1] != 'x' {
		return nil, &LoadError{OID: ByteaOID, Format: format, Reason: "missing hex prefix"}
	}
	out, err := hex.DecodeString(string(data[2:]))
	if err != nil {
		return nil, &LoadError{OID: ByteaOID, Format: format, Reason: err.Error()}
	}
	return out, nil
}

type uuidDumper struct{}

func (uuidDumper) OID() uint32   { return UUIDOID }
func (uuidDumper) Format() int16 { return wire.BinaryFormatCode }

func (uuidDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	u := v.(uuid.UUID)
	return append(buf, u.Bytes()...), nil
}

type uuidLoader struct{}

func (uuidLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.BinaryFormatCode {
		u, err := uuid.FromBytes(data)
		if err != nil {
			return nil, &LoadError{OID: UUIDOID, Format: format, Reason: err.Error()}
		}
		return u, nil
	}
	u, err := uuid.FromString(string(data))
	if err != nil {
		return nil, &LoadError{OID: UUIDOID, Format: format, Reason: err.Error()}
	}
	return u, nil
}
