// Package sfloat implements the IEEE 11073 16-bit SFLOAT encoding used by
// Bluetooth SIG health profiles (blood pressure, thermometer, glucose).
//
// An SFLOAT word packs a 4-bit two's-complement base-10 exponent in the high
// nibble and a 12-bit two's-complement mantissa in the low 12 bits. Five bit
// patterns are reserved for special values and never decode to a finite
// number.
package sfloat

import (
	"errors"
	"math"
)

// Reserved special-value words (exponent nibble 0x0, mantissa in the
// reserved band 0x7FE..0x802).
const (
	WordNaN    uint16 = 0x07FF // not a number
	WordNRes   uint16 = 0x0800 // not at this resolution
	WordPosInf uint16 = 0x07FE
	WordNegInf uint16 = 0x0802
	WordRFU    uint16 = 0x0801 // reserved for future use
)

const (
	mantissaMax = 0x07FD
	mantissaMin = -0x0800
	exponentMax = 7
	exponentMin = -8
)

// ErrReserved is returned for the 0x0801 word, which has no valid
// representation.
var ErrReserved = errors.New("sfloat: reserved value")

// ErrRange is returned by Encode when mantissa or exponent do not fit the
// SFLOAT bit layout.
var ErrRange = errors.New("sfloat: value out of range")

// Decode converts a 16-bit SFLOAT word into a float64.
//
// The two NaN-like reserved words (NaN and NRes) both decode to NaN; callers
// that need to distinguish them must inspect the raw word. The RFU word has
// no valid representation and yields ErrReserved.
func Decode(raw uint16) (float64, error) {
	switch raw {
	case WordNaN, WordNRes:
		return math.NaN(), nil
	case WordPosInf:
		return math.Inf(1), nil
	case WordNegInf:
		return math.Inf(-1), nil
	case WordRFU:
		return 0, ErrReserved
	}

	mantissa := int(raw & 0x0FFF)
	if mantissa >= 0x0800 {
		mantissa -= 0x1000
	}

	exponent := int(raw >> 12)
	if exponent >= 0x08 {
		exponent = -((0x0F - exponent) + 1)
	}

	return float64(mantissa) * math.Pow(10, float64(exponent)), nil
}

// Encode packs a mantissa and base-10 exponent into an SFLOAT word.
// Mantissa values in the reserved band (0x7FE..0x802 with exponent 0) cannot
// be produced; the caller is expected to scale into range first.
func Encode(mantissa, exponent int) (uint16, error) {
	if mantissa < mantissaMin || mantissa > mantissaMax {
		return 0, ErrRange
	}
	if exponent < exponentMin || exponent > exponentMax {
		return 0, ErrRange
	}
	return uint16(exponent&0x0F)<<12 | uint16(mantissa)&0x0FFF, nil
}
