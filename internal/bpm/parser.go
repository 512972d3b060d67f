package bpm

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/srg/bpmon/internal/sfloat"
)

// Flag bits of the first payload byte. Optional fields are consumed in
// ascending bit order; a present field shifts every later offset.
const (
	flagUnitKPa byte = 1 << iota
	flagTimestamp
	flagPulseRate
	flagUserID
	flagStatus
)

// DecodeError reports a payload shorter than its flag byte demands.
type DecodeError struct {
	Field  string // field being read when the payload ran out
	Offset int    // cursor position of the failed read
	Need   int    // bytes required by the field
	Have   int    // bytes remaining
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("blood pressure payload truncated: need %d byte(s) for %s at offset %d, have %d",
		e.Need, e.Field, e.Offset, e.Have)
}

// reader is an explicit cursor over the indication payload. Every read
// advances the cursor and rejects out-of-bounds access with a DecodeError,
// so field offsets never need manual index arithmetic.
type reader struct {
	buf []byte
	off int
}

func (r *reader) require(field string, n int) error {
	if r.off+n > len(r.buf) {
		return &DecodeError{Field: field, Offset: r.off, Need: n, Have: len(r.buf) - r.off}
	}
	return nil
}

func (r *reader) u8(field string) (byte, error) {
	if err := r.require(field, 1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) u16(field string) (uint16, error) {
	if err := r.require(field, 2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// sfloat reads one little-endian SFLOAT word. The reserved word (0x0801)
// collapses to NaN here: the record keeps its "always present" shape and the
// caller sees a not-a-number pressure rather than a decode failure.
func (r *reader) sfloat(field string) (float64, error) {
	raw, err := r.u16(field)
	if err != nil {
		return 0, err
	}
	v, err := sfloat.Decode(raw)
	if err != nil {
		return math.NaN(), nil
	}
	return v, nil
}

// ParseMeasurement decodes one Blood Pressure Measurement indication payload.
// The byte layout is defined by the Bluetooth SIG Blood Pressure Profile:
// a flag byte, three SFLOAT pressures, then optional timestamp, pulse rate,
// user id and status fields in strict flag-bit order.
func ParseMeasurement(payload []byte, receivedAt time.Time) (*Measurement, error) {
	r := &reader{buf: payload}

	flags, err := r.u8("flags")
	if err != nil {
		return nil, err
	}

	m := &Measurement{
		Unit:       UnitMmHg,
		ReceivedAt: receivedAt,
	}
	if flags&flagUnitKPa != 0 {
		m.Unit = UnitKPa
	}

	if m.Systolic, err = r.sfloat("systolic"); err != nil {
		return nil, err
	}
	if m.Diastolic, err = r.sfloat("diastolic"); err != nil {
		return nil, err
	}
	if m.MeanArterial, err = r.sfloat("mean arterial pressure"); err != nil {
		return nil, err
	}
	if m.Unit == UnitKPa {
		m.Systolic = kPaToMmHg(m.Systolic)
		m.Diastolic = kPaToMmHg(m.Diastolic)
		m.MeanArterial = kPaToMmHg(m.MeanArterial)
	}

	if flags&flagTimestamp != 0 {
		ts, err := readTimestamp(r)
		if err != nil {
			return nil, err
		}
		m.DeviceTimestamp = &ts
	}

	if flags&flagPulseRate != 0 {
		pulse, err := r.sfloat("pulse rate")
		if err != nil {
			return nil, err
		}
		if m.Unit == UnitKPa {
			pulse = kPaToMmHg(pulse)
		}
		m.PulseRate = &pulse
	}

	if flags&flagUserID != 0 {
		id, err := r.u8("user id")
		if err != nil {
			return nil, err
		}
		m.UserID = &id
	}

	if flags&flagStatus != 0 {
		bitmap, err := r.u16("measurement status")
		if err != nil {
			return nil, err
		}
		m.Status = &StatusFlags{
			BodyMovementDetected:        bitmap&(1<<0) != 0,
			CuffFitError:                bitmap&(1<<1) != 0,
			IrregularPulseDetected:      bitmap&(1<<2) != 0,
			PulseRateOutOfRange:         bitmap&(1<<3) != 0,
			MeasurementPositionImproper: bitmap&(1<<4) != 0,
		}
	}

	return m, nil
}

// readTimestamp consumes the 7-byte date-time field: uint16-LE year followed
// by month, day, hour, minute, second. The device reports naive local wall
// time; no zone is implied.
func readTimestamp(r *reader) (time.Time, error) {
	year, err := r.u16("timestamp year")
	if err != nil {
		return time.Time{}, err
	}
	var parts [5]byte
	for i, field := range []string{"timestamp month", "timestamp day", "timestamp hour", "timestamp minute", "timestamp second"} {
		if parts[i], err = r.u8(field); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(int(year), time.Month(parts[0]), int(parts[1]),
		int(parts[2]), int(parts[3]), int(parts[4]), 0, time.UTC), nil
}

// kPaToMmHg converts a kPa pressure to mmHg rounded to the nearest integer.
// NaN and infinities pass through unchanged.
func kPaToMmHg(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v * mmHgPerKPa)
}
