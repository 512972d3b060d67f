package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/bpmon/internal/bpm"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex-payload>...",
	Short: "Decode a Blood Pressure Measurement payload offline",
	Long: `Decode one or more raw Blood Pressure Measurement payloads without a
device, e.g. frames captured with a BLE sniffer.

Payloads are hex strings; spaces, colons and a 0x prefix are accepted:

  bpmon decode 04780050005d00bcf2
  bpmon decode "1e 78 00 50 00 5d 00 e9 07 08 1b 0e 1e 2d bc 02 01 07 00"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

var decodeFormat string

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "text", "Output format (text, json)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeFormat != "text" && decodeFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", decodeFormat)
	}
	cmd.SilenceUsage = true

	for _, arg := range args {
		payload, err := parseHexPayload(arg)
		if err != nil {
			return err
		}

		m, err := bpm.ParseMeasurement(payload, time.Now())
		if err != nil {
			return fmt.Errorf("failed to decode %q: %w", arg, err)
		}

		if decodeFormat == "json" {
			if err := printDecodedJSON(cmd, m); err != nil {
				return err
			}
			continue
		}
		printDecodedText(cmd, m)
	}
	return nil
}

// parseHexPayload accepts hex with optional 0x prefix, spaces, colons and
// dashes between bytes.
func parseHexPayload(s string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-':
			return -1
		}
		return r
	}, cleaned)

	payload, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return payload, nil
}

func printDecodedText(cmd *cobra.Command, m *bpm.Measurement) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Systolic:      %.1f mmHg\n", m.Systolic)
	fmt.Fprintf(out, "Diastolic:     %.1f mmHg\n", m.Diastolic)
	fmt.Fprintf(out, "Mean arterial: %.1f mmHg\n", m.MeanArterial)
	fmt.Fprintf(out, "Stage:         %s\n", m.Stage())
	if m.PulseRate != nil {
		fmt.Fprintf(out, "Pulse:         %.0f bpm\n", *m.PulseRate)
	}
	if m.DeviceTimestamp != nil {
		fmt.Fprintf(out, "Timestamp:     %s\n", m.DeviceTimestamp.Format("2006-01-02 15:04:05"))
	}
	if m.UserID != nil {
		fmt.Fprintf(out, "User ID:       %d\n", *m.UserID)
	}
	if m.Status != nil {
		warnings := statusWarnings(m.Status)
		if len(warnings) == 0 {
			fmt.Fprintln(out, "Status:        ok")
		} else {
			fmt.Fprintf(out, "Status:        %s\n", strings.Join(warnings, "; "))
		}
	}
	fmt.Fprintln(out)
}

// decodedMeasurement is the JSON shape of a decoded payload.
type decodedMeasurement struct {
	Systolic     float64  `json:"systolic"`
	Diastolic    float64  `json:"diastolic"`
	MeanArterial float64  `json:"meanArterial"`
	Stage        string   `json:"stage"`
	PulseRate    *float64 `json:"pulseRate,omitempty"`
	Timestamp    *string  `json:"timestamp,omitempty"`
	UserID       *uint8   `json:"userId,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

func printDecodedJSON(cmd *cobra.Command, m *bpm.Measurement) error {
	d := decodedMeasurement{
		Systolic:     m.Systolic,
		Diastolic:    m.Diastolic,
		MeanArterial: m.MeanArterial,
		Stage:        m.Stage().String(),
		PulseRate:    m.PulseRate,
		UserID:       m.UserID,
	}
	if m.DeviceTimestamp != nil {
		ts := m.DeviceTimestamp.Format(time.RFC3339)
		d.Timestamp = &ts
	}
	if m.Status != nil {
		d.Warnings = statusWarnings(m.Status)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
