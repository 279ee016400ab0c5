package adapt

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/jackc/pgio"

	"pgcore/internal/wire"
)

// PostgreSQL day/timestamp epoch is 2000-01-01.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	infinityDateDays    = math.MaxInt32
	negInfinityDateDays = math.MinInt32
	infinityMicros      = math.MaxInt64
	negInfinityMicros   = math.MinInt64
	nanosecondsPerMicro = 1000
)

type timestamptzDumper struct{}

func (timestamptzDumper) OID() uint32   { return TimestamptzOID }
func (timestamptzDumper) Format() int16 { return wire.BinaryFormatCode }

func (timestamptzDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	t := v.(time.Time)
	micros := t.Unix()*1000000 + int64(t.Nanosecond())/nanosecondsPerMicro - pgEpoch.Unix()*1000000
	return pgio.AppendInt64(buf, micros), nil
}

type dateLoader struct{}

func (dateLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.TextFormatCode {
		s := string(data)
		if s == "infinity" || s == "-infinity" {
			return nil, &DataOverflowError{OID: DateOID, Value: s}
		}
		t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return nil, &LoadError{OID: DateOID, Format: format, Reason: err.Error()}
		}
		return t, nil
	}

	if len(data) != 4 {
		return nil, &LoadError{OID: DateOID, Format: format, Reason: "invalid length"}
	}
	days := int32(binary.BigEndian.Uint32(data))
	switch days {
	case infinityDateDays:
		return nil, &DataOverflowError{OID: DateOID, Value: "infinity"}
	case negInfinityDateDays:
		return nil, &DataOverflowError{OID: DateOID, Value: "-infinity"}
	}
	return pgEpoch.AddDate(0, 0, int(days)), nil
}

type timestampLoader struct {
	oid uint32
}

var timestampTextLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

func (l timestampLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.TextFormatCode {
		s := string(data)
		if s == "infinity" || s == "-infinity" {
			return nil, &DataOverflowError{OID: l.oid, Value: s}
		}
		for _, layout := range timestampTextLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, nil
			}
		}
		return nil, &LoadError{OID: l.oid, Format: format, Reason: "invalid timestamp text " + s}
	}

	if len(data) != 8 {
		return nil, &LoadError{OID: l.oid, Format: format, Reason: "invalid length"}
	}
	micros := int64(binary.BigEndian.Uint64(data))
	switch micros {
	case infinityMicros:
		return nil, &DataOverflowError{OID: l.oid, Value: "infinity"}
	case negInfinityMicros:
		return nil, &DataOverflowError{OID: l.oid, Value: "-infinity"}
	}
	return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}
