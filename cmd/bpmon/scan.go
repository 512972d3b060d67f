package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/bpmon/internal/gattdb"
	"github.com/srg/bpmon/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for blood pressure cuffs",
	Long: `Scan for Bluetooth Low Energy blood pressure cuffs in the vicinity.

Only devices advertising the Blood Pressure service (0x1810) or a known
vendor service are listed; pass --all to list every BLE device instead.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanAll         bool
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List all BLE devices, not just blood pressure cuffs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	logger, err := commandLogger(cmd, nil)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s, err := scanner.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := scanner.DefaultOptions()
	opts.DuplicateFilter = scanNoDuplicate
	opts.AllowList = scanAllowList
	opts.BlockList = scanBlockList
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	if scanAll {
		opts.ServiceUUIDs = nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := newProgressPrinter("Scanning for blood pressure cuffs", "Scanning", opts.Duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	cuffs, err := s.Scan(ctx, opts, progress.Callback())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	progress.Stop()

	if scanFormat == "json" {
		return displayCuffsJSON(cmd, cuffs)
	}
	return displayCuffsTable(cmd, cuffs)
}

func displayCuffsTable(cmd *cobra.Command, cuffs []scanner.Cuff) error {
	if len(cuffs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No blood pressure cuffs discovered")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 70))

	for _, c := range cuffs {
		name := c.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := make([]string, 0, len(c.Services))
		for _, s := range c.Services {
			short := gattdb.NormalizeUUID(s)
			if known := gattdb.LookupService(short); known != "" {
				short = fmt.Sprintf("%s (%s)", short, known)
			}
			services = append(services, short)
		}
		joined := strings.Join(services, ",")
		if len(joined) > 40 {
			joined = joined[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, c.Address, c.RSSI, joined)
	}

	return w.Flush()
}

func displayCuffsJSON(cmd *cobra.Command, cuffs []scanner.Cuff) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(cuffs)
}
