package sfloat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSpecialValues(t *testing.T) {
	tests := []struct {
		name  string
		raw   uint16
		check func(t *testing.T, v float64, err error)
	}{
		{
			name: "NaN word decodes to NaN",
			raw:  0x07FF,
			check: func(t *testing.T, v float64, err error) {
				require.NoError(t, err)
				assert.True(t, math.IsNaN(v))
			},
		},
		{
			name: "NRes word collapses to NaN",
			raw:  0x0800,
			check: func(t *testing.T, v float64, err error) {
				require.NoError(t, err)
				assert.True(t, math.IsNaN(v))
			},
		},
		{
			name: "positive infinity",
			raw:  0x07FE,
			check: func(t *testing.T, v float64, err error) {
				require.NoError(t, err)
				assert.True(t, math.IsInf(v, 1))
			},
		},
		{
			name: "negative infinity",
			raw:  0x0802,
			check: func(t *testing.T, v float64, err error) {
				require.NoError(t, err)
				assert.True(t, math.IsInf(v, -1))
			},
		},
		{
			name: "reserved word has no representation",
			raw:  0x0801,
			check: func(t *testing.T, v float64, err error) {
				assert.ErrorIs(t, err, ErrReserved)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode(tt.raw)
			tt.check(t, v, err)
		})
	}
}

func TestDecodeFiniteValues(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint16
		expected float64
	}{
		{name: "zero", raw: 0x0000, expected: 0},
		{name: "plain integer", raw: 0x0078, expected: 120}, // 120 * 10^0
		{name: "negative exponent", raw: 0xF2BC, expected: 70},      // 700 * 10^-1
		{name: "positive exponent", raw: 0x100C, expected: 120},     // 12 * 10^1
		{name: "negative mantissa", raw: 0x0FFF, expected: -1},      // -1 * 10^0
		{name: "negative mantissa and exponent", raw: 0xFFF6, expected: -1}, // -10 * 10^-1
		{name: "largest positive mantissa", raw: 0x07FD, expected: 2045},
		{name: "most negative mantissa", raw: 0x0803, expected: -2045},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 1e-9)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// decode(encode(m, e)) == m * 10^e for every representable pair
	cases := []struct {
		mantissa int
		exponent int
	}{
		{0, 0},
		{1, 0},
		{-1, 0},
		{120, 0},
		{700, -1},
		{160, -1}, // 16.0 kPa
		{2045, 7},
		{-2048, -8},
		{999, 3},
	}

	for _, c := range cases {
		raw, err := Encode(c.mantissa, c.exponent)
		require.NoError(t, err, "mantissa=%d exponent=%d", c.mantissa, c.exponent)

		v, err := Decode(raw)
		require.NoError(t, err)
		expected := float64(c.mantissa) * math.Pow(10, float64(c.exponent))
		assert.InDelta(t, expected, v, math.Abs(expected)*1e-12+1e-12,
			"mantissa=%d exponent=%d raw=0x%04X", c.mantissa, c.exponent, raw)
	}
}

func TestEncodeRange(t *testing.T) {
	_, err := Encode(0x0800, 0)
	assert.ErrorIs(t, err, ErrRange, "mantissa above representable range")

	_, err = Encode(-0x0801, 0)
	assert.ErrorIs(t, err, ErrRange, "mantissa below representable range")

	_, err = Encode(0, 8)
	assert.ErrorIs(t, err, ErrRange, "exponent above representable range")

	_, err = Encode(0, -9)
	assert.ErrorIs(t, err, ErrRange, "exponent below representable range")
}
