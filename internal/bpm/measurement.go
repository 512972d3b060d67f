// Package bpm implements the GATT Blood Pressure Profile measurement record:
// flag-driven payload parsing, unit normalization, the BP Feature capability
// bitmap, and hypertension staging of decoded readings.
package bpm

import (
	"fmt"
	"time"
)

// Unit identifies the pressure unit transmitted by the device. Decoded
// measurements are always normalized to mmHg; Unit records what came over
// the air.
type Unit string

const (
	UnitMmHg Unit = "mmHg"
	UnitKPa  Unit = "kPa"
)

// mmHgPerKPa is the number of mmHg per kPa defined by the
// Blood Pressure Profile.
const mmHgPerKPa = 7.50062

// StatusFlags holds the measurement status bitmap transmitted when flag
// bit 4 is set. Each field is an independent fault indicator.
type StatusFlags struct {
	BodyMovementDetected        bool
	CuffFitError                bool
	IrregularPulseDetected      bool
	PulseRateOutOfRange         bool
	MeasurementPositionImproper bool
}

// Measurement is one decoded Blood Pressure Measurement indication.
//
// Systolic, Diastolic and MeanArterial are always present and reported in
// mmHg; they may be NaN or infinite when the device transmits an SFLOAT
// sentinel. The remaining fields are nil unless the corresponding flag bit
// was set in the payload.
type Measurement struct {
	Systolic     float64
	Diastolic    float64
	MeanArterial float64
	Unit         Unit

	PulseRate       *float64
	DeviceTimestamp *time.Time // naive device-local wall time, no zone implied
	UserID          *uint8
	Status          *StatusFlags

	ReceivedAt time.Time // host capture time, independent of DeviceTimestamp
}

// Stage classifies the measurement per the hypertension staging table.
func (m *Measurement) Stage() Stage {
	return Classify(m.Systolic, m.Diastolic)
}

func (m *Measurement) String() string {
	s := fmt.Sprintf("%.0f/%.0f mmHg (MAP %.0f)", m.Systolic, m.Diastolic, m.MeanArterial)
	if m.PulseRate != nil {
		s += fmt.Sprintf(", %.0f bpm", *m.PulseRate)
	}
	return s
}

// Features is the BP Feature characteristic (0x2A49) capability bitmap.
type Features uint16

const (
	FeatureBodyMovementDetection Features = 1 << iota
	FeatureCuffFitDetection
	FeatureIrregularPulseDetection
	FeaturePulseRateRangeDetection
	FeatureMeasurementPositionDetection
	FeatureMultipleBond
)

// Has reports whether every capability in mask is supported.
func (f Features) Has(mask Features) bool {
	return f&mask == mask
}

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  Features
		name string
	}{
		{FeatureBodyMovementDetection, "body-movement"},
		{FeatureCuffFitDetection, "cuff-fit"},
		{FeatureIrregularPulseDetection, "irregular-pulse"},
		{FeaturePulseRateRangeDetection, "pulse-range"},
		{FeatureMeasurementPositionDetection, "position"},
		{FeatureMultipleBond, "multiple-bond"},
	}
	s := ""
	for _, n := range names {
		if f&n.bit == 0 {
			continue
		}
		if s != "" {
			s += ","
		}
		s += n.name
	}
	if s == "" {
		return fmt.Sprintf("0x%04x", uint16(f))
	}
	return s
}
