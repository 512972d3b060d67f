package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/bpmon/internal/bpm"
	"github.com/srg/bpmon/internal/config"
	"github.com/srg/bpmon/internal/device/goble"
	"github.com/srg/bpmon/internal/events"
	"github.com/srg/bpmon/internal/history"
	"github.com/srg/bpmon/internal/monitor"
	"github.com/srg/bpmon/internal/publish"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to a cuff and stream measurements",
	Long: `Connect to a blood pressure cuff and print each measurement as it
arrives, together with its hypertension stage.

Discovery tries the standard Blood Pressure service first and falls back to
the vendor service used by some cuffs. Measurements keep streaming until
Ctrl+C; with --reconnect, a dropped link is re-established automatically.

With --amqp, each reading is also published to a RabbitMQ queue.`,
	RunE: runMonitor,
}

var (
	monitorConfigPath string
	monitorDeviceAddr string
	monitorReconnect  bool
	monitorMemberID   int64
	monitorAMQPURL    string
	monitorAMQPQueue  string
)

func init() {
	monitorCmd.Flags().StringVarP(&monitorConfigPath, "config", "c", "", "Path to YAML config file")
	monitorCmd.Flags().StringVar(&monitorDeviceAddr, "device", "", "Connect to this address without prompting")
	monitorCmd.Flags().BoolVar(&monitorReconnect, "reconnect", false, "Reconnect automatically after an unexpected disconnect")
	monitorCmd.Flags().Int64Var(&monitorMemberID, "member-id", 0, "Member ID attached to published readings")
	monitorCmd.Flags().StringVar(&monitorAMQPURL, "amqp", "", "RabbitMQ URL to publish readings to")
	monitorCmd.Flags().StringVar(&monitorAMQPQueue, "queue", "", "RabbitMQ queue name")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(monitorConfigPath)
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg)

	logger, err := commandLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport := goble.NewTransport(logger)
	transport.ScanTimeout = cfg.ScanTimeout
	transport.ConnectTimeout = cfg.ConnectTimeout
	transport.Choose = newChooser(monitorDeviceAddr)

	hub := events.NewHub(logger)
	hist := history.New(cfg.HistorySize)
	mon := monitor.New(transport, hub, logger)

	var store bpm.Store
	if cfg.AMQPURL != "" {
		publisher, err := publish.Dial(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close publisher")
			}
		}()
		store = publisher
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cancelMeasurements := hub.OnMeasurement(func(m *bpm.Measurement) {
		hist.Push(m)
		printMeasurement(m)
		if store == nil {
			return
		}
		if err := store.SaveReading(ctx, m.Reading(cfg.MemberID)); err != nil {
			logger.WithError(err).Warn("Failed to publish reading")
		}
	})
	defer cancelMeasurements()

	cancelDisconnects := hub.OnDisconnected(func(d events.Disconnect) {
		if d.Unexpected {
			color.Yellow("Cuff connection lost")
		}
	})
	defer cancelDisconnects()

	if monitorReconnect {
		rec := monitor.NewReconnector(mon, hub, cfg.ReconnectDelay, logger)
		defer rec.Stop()
	}

	info, err := mon.Connect(ctx)
	if err != nil {
		return err
	}
	printConnected(mon, info)

	defer func() {
		if err := mon.Disconnect(); err != nil {
			logger.WithError(err).Warn("Disconnect failed")
		}
		printHistory(hist)
	}()

	// Stream until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Println("Waiting for measurements, press Ctrl+C to stop...")
	select {
	case <-sigCh:
		fmt.Println()
	case <-ctx.Done():
	}
	return nil
}

// applyMonitorFlags lets explicit flags override file configuration.
func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("member-id") {
		cfg.MemberID = monitorMemberID
	}
	if cmd.Flags().Changed("amqp") {
		cfg.AMQPURL = monitorAMQPURL
	}
	if cmd.Flags().Changed("queue") {
		cfg.AMQPQueue = monitorAMQPQueue
	}
}

func printConnected(mon *monitor.Monitor, info *monitor.DeviceInfo) {
	name := info.Name
	if name == "" {
		name = info.ID
	}
	fmt.Printf("Connected to %s", name)
	if info.ServiceVariant == monitor.VariantVendor {
		fmt.Print(" (vendor service)")
	}
	fmt.Println()

	if features, ok := mon.Features(); ok {
		fmt.Printf("Cuff features: %s\n", features)
	}
}

// stageColor maps a hypertension stage onto a terminal color.
func stageColor(stage bpm.Stage) *color.Color {
	switch stage {
	case bpm.StageNormal:
		return color.New(color.FgGreen)
	case bpm.StageElevated:
		return color.New(color.FgYellow)
	case bpm.StageHypertension1:
		return color.New(color.FgYellow, color.Bold)
	case bpm.StageHypertension2:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func printMeasurement(m *bpm.Measurement) {
	when := m.ReceivedAt
	if m.DeviceTimestamp != nil {
		when = *m.DeviceTimestamp
	}

	stage := m.Stage()
	fmt.Printf("[%s] %s  ", when.Format("15:04:05"), m)
	stageColor(stage).Printf("[%s]", stage)
	fmt.Println()

	if m.Status != nil {
		for _, w := range statusWarnings(m.Status) {
			color.Yellow("  warning: %s", w)
		}
	}
}

func statusWarnings(s *bpm.StatusFlags) []string {
	var warnings []string
	if s.BodyMovementDetected {
		warnings = append(warnings, "body movement during measurement")
	}
	if s.CuffFitError {
		warnings = append(warnings, "cuff too loose")
	}
	if s.IrregularPulseDetected {
		warnings = append(warnings, "irregular pulse detected")
	}
	if s.PulseRateOutOfRange {
		warnings = append(warnings, "pulse rate outside measurable range")
	}
	if s.MeasurementPositionImproper {
		warnings = append(warnings, "improper measurement position")
	}
	return warnings
}

func printHistory(hist *history.History) {
	measurements := hist.List()
	if len(measurements) == 0 {
		return
	}

	fmt.Printf("\nSession readings (%d, newest first):\n", len(measurements))
	fmt.Println(strings.Repeat("-", 50))
	for _, m := range measurements {
		when := m.ReceivedAt
		if m.DeviceTimestamp != nil {
			when = *m.DeviceTimestamp
		}
		fmt.Printf("  %s  %s  [%s]\n", when.Format(time.TimeOnly), m, m.Stage())
	}
}
