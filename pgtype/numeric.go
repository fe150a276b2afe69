package pgtype

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd"
	"github.com/jackc/pgio"
)

// Numeric is the decoded form of the numeric type. Decimal is nil
// when NaN is set.
type Numeric struct {
	Decimal *apd.Decimal
	NaN     bool
}

func (n Numeric) String() string {
	if n.NaN {
		return "NaN"
	}
	return n.Decimal.String()
}

const (
	numericPos = 0x0000
	numericNeg = 0x4000
	numericNaN = 0xC000
)

var big10k = big.NewInt(10000)

// NumericCodec handles numeric: a sign/weight header and base-10000
// digits.
type NumericCodec struct{}

func (NumericCodec) EncodeBinary(value any, buf []byte) ([]byte, error) {
	var dec *apd.Decimal
	switch v := value.(type) {
	case Numeric:
		if v.NaN {
			buf = pgio.AppendInt16(buf, 0)
			buf = pgio.AppendInt16(buf, 0)
			buf = pgio.AppendUint16(buf, numericNaN)
			buf = pgio.AppendInt16(buf, 0)
			return buf, nil
		}
		dec = v.Decimal
	case *apd.Decimal:
		dec = v
	case apd.Decimal:
		dec = &v
	default:
		return nil, fmt.Errorf("cannot encode %T into numeric", value)
	}
	if dec == nil {
		return nil, fmt.Errorf("cannot encode nil decimal into numeric")
	}

	var dscale int16
	if dec.Exponent < 0 {
		dscale = int16(-dec.Exponent)
	}

	// align the exponent to a multiple of 4 so the coefficient maps
	// onto base-10000 digits
	coeff := new(big.Int).Abs(&dec.Coeff)
	exp := dec.Exponent
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

	// digits were produced least significant first
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	weight := int16(exp/4) + int16(len(digits)) - 1
	if len(digits) == 0 {
		weight = 0
	}

	// trailing zero digits are implied by the weight
	for len(digits) > 0 && digits[len(digits)-1] == 0 {
		digits = digits[:len(digits)-1]
	}

	sign := uint16(numericPos)
	if dec.Negative {
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

func (NumericCodec) DecodeBinary(src []byte) (any, error) {
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
	rp += 2 // dscale is display information only

	if sign == numericNaN {
		return Numeric{NaN: true}, nil
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

	exp := int32(weight-ndigits+1) * 4
	if ndigits == 0 {
		exp = 0
	}

	dec := apd.NewWithBigInt(coeff, exp)
	dec.Negative = sign == numericNeg

	return Numeric{Decimal: dec}, nil
}
