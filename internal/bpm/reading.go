package bpm

import (
	"context"
	"math"
	"time"
)

// Reading is the API form of a measurement handed across the persistence
// boundary. The core produces readings; it never performs the network or
// database I/O that stores them.
type Reading struct {
	MemberID    int64  `json:"memberId"`
	Systolic    int    `json:"systolic"`
	Diastolic   int    `json:"diastolic"`
	HeartRate   *int   `json:"heartRate"`
	ReadingDate string `json:"readingDate"` // ISO-8601
}

// Store persists readings. Implementations live outside the core
// (HTTP client, message broker, database adapter).
type Store interface {
	SaveReading(ctx context.Context, r Reading) error
}

// Reading converts the measurement to its API form for memberID.
// The reading date is the device timestamp when present, otherwise the host
// capture time.
func (m *Measurement) Reading(memberID int64) Reading {
	r := Reading{
		MemberID:    memberID,
		Systolic:    roundInt(m.Systolic),
		Diastolic:   roundInt(m.Diastolic),
		ReadingDate: m.ReceivedAt.Format(time.RFC3339),
	}
	if m.DeviceTimestamp != nil {
		r.ReadingDate = m.DeviceTimestamp.Format(time.RFC3339)
	}
	if m.PulseRate != nil {
		hr := roundInt(*m.PulseRate)
		r.HeartRate = &hr
	}
	return r
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
