// Package shopspringnumeric provides a numeric codec backed by
// github.com/shopspring/decimal. Register swaps it in for a pool's
// type map when callers prefer decimal.Decimal over the default
// apd-based representation.
package shopspringnumeric

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/jackc/pgio"
	"github.com/shopspring/decimal"

	"github.com/bryanhughes/pgo/pgtype"
)

// Register installs Codec for the numeric OID and teaches the map to
// infer numeric for decimal.Decimal parameters.
func Register(m *pgtype.Map) {
	m.RegisterDataType(pgtype.DataType{Name: "numeric", OID: pgtype.NumericOID, Codec: Codec{}})
	m.RegisterValueOID(func(value any) (uint32, bool) {
		switch value.(type) {
		case decimal.Decimal, *decimal.Decimal, decimal.NullDecimal:
			return pgtype.NumericOID, true
		default:
			return 0, false
		}
	})
}

const (
	numericPos = 0x0000
	numericNeg = 0x4000
	numericNaN = 0xC000
)

var big10k = big.NewInt(10000)

// Codec encodes and decodes numeric as decimal.Decimal.
type Codec struct{}

func (Codec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	var dec decimal.Decimal
	switch v := value.(type) {
	case decimal.Decimal:
		dec = v
	case *decimal.Decimal:
		dec = *v
	case decimal.NullDecimal:
		if !v.Valid {
			return nil, fmt.Errorf("cannot encode null NullDecimal; pass nil instead")
		}
		dec = v.Decimal
	default:
		return nil, fmt.Errorf("cannot encode %T into numeric", value)
	}

	var dscale int16
	if dec.Exponent() < 0 {
		dscale = int16(-dec.Exponent())
	}

	coeff := new(big.Int).Abs(dec.Coefficient())
	exp := dec.Exponent()
	if shift := ((exp % 4) + 4) % 4; shift != 0 {
		coeff.Mul(coeff, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil))
		exp -= shift
	}

	var digits []int16
	rem := new(big.Int)
	for coeff.Sign() != 0 {
		coeff.QuoRem(coeff, big10k, rem)
		digits = append(digits, int16(rem.Int64()))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	weight := int16(exp/4) + int16(len(digits)) - 1
	if len(digits) == 0 {
		weight = 0
	}

	for len(digits) > 0 && digits[len(digits)-1] == 0 {
		digits = digits[:len(digits)-1]
	}

	sign := uint16(numericPos)
	if dec.Sign() < 0 {
		sign = numericNeg
	}

	buf = pgio.AppendInt16(buf, int16(len(digits)))
	buf = pgio.AppendInt16(buf, weight)
	buf = pgio.AppendUint16(buf, sign)
	buf = pgio.AppendInt16(buf, dscale)
	for _, d := range digits {
		buf = pgio.AppendInt16(buf, d)
	}

	return buf, nil
}

func (Codec) DecodeBinary(src []byte) (any, error) {
	if len(src) < 8 {
		return nil, fmt.Errorf("invalid length for numeric: %d", len(src))
	}

	rp := 0
	ndigits := int(int16(binary.BigEndian.Uint16(src[rp:])))
	rp += 2
	weight := int(int16(binary.BigEndian.Uint16(src[rp:])))
	rp += 2
	sign := binary.BigEndian.Uint16(src[rp:])
	rp += 2
	rp += 2 // dscale

	if sign == numericNaN {
		return nil, fmt.Errorf("decimal.Decimal cannot represent NaN")
	}

	if len(src[rp:]) < ndigits*2 {
		return nil, fmt.Errorf("numeric digits truncated: want %d, have %d bytes", ndigits*2, len(src[rp:]))
	}

	coeff := new(big.Int)
	for i := 0; i < ndigits; i++ {
		digit := int64(int16(binary.BigEndian.Uint16(src[rp:])))
		rp += 2
		coeff.Mul(coeff, big10k)
		coeff.Add(coeff, big.NewInt(digit))
	}
	if sign == numericNeg {
		coeff.Neg(coeff)
	}

	exp := int32(weight-ndigits+1) * 4
	if ndigits == 0 {
		exp = 0
	}

	return decimal.NewFromBigInt(coeff, exp), nil
}
