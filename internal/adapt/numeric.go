package adapt

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"

	"pgcore/internal/wire"
)

// numeric binary sign field values
const (
	numericPositive = 0x0000
	numericNegative = 0x4000
	numericNaN      = 0xC000
)

// numericDumper sends decimals in text format. The text form is exact for any scale and
// the server converts it without loss; producing the base-10000 binary form buys nothing
// for parameters.
type numericDumper struct{}

func (numericDumper) OID() uint32   { return NumericOID }
func (numericDumper) Format() int16 { return wire.TextFormatCode }

func (numericDumper) Dump(v interface{}, buf []byte) ([]byte, error) {
	d := v.(decimal.Decimal)
	return append(buf, d.String()...), nil
}

type numericLoader struct{}

func (numericLoader) Load(data []byte, format int16) (interface{}, error) {
	if format == wire.TextFormatCode {
		s := string(data)
		if s == "NaN" {
			return nil, &LoadError{OID: NumericOID, Format: format, Reason: "NaN has no decimal representation"}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, &LoadError{OID: NumericOID, Format: format, Reason: err.Error()}
		}
		return d, nil
	}

	// Binary layout: ndigits, weight, sign, dscale int16 header followed by ndigits
	// base-10000 digits. The value is digits scaled by 10^(4*(weight+1-ndigits)).
	if len(data) < 8 {
		return nil, &LoadError{OID: NumericOID, Format: format, Reason: "invalid length"}
	}
	ndigits := int(int16(binary.BigEndian.Uint16(data)))
	weight := int(int16(binary.BigEndian.Uint16(data[2:])))
	sign := binary.BigEndian.Uint16(data[4:])

	if sign == numericNaN {
		return nil, &LoadError{OID: NumericOID, Format: format, Reason: "NaN has no decimal representation"}
	}
	if len(data) != 8+2*ndigits {
		return nil, &LoadError{OID: NumericOID, Format: format, Reason: "digit count does not match length"}
	}

	accum := new(big.Int)
	tenK := big.NewInt(10000)
	digit := new(big.Int)
	for i := 0; i < ndigits; i++ {
		accum.Mul(accum, tenK)
		digit.SetInt64(int64(binary.BigEndian.Uint16(data[8+2*i:])))
		accum.Add(accum, digit)
	}
	if sign == numericNegative {
		accum.Neg(accum)
	} else if sign != numericPositive {
		return nil, &LoadError{OID: NumericOID, Format: format, Reason: "invalid sign field"}
	}

	exp := 4 * (weight + 1 - ndigits)
	return decimal.NewFromBigInt(accum, int32(exp)), nil
}
