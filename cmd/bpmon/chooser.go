package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/bpmon/internal/device"
	"github.com/srg/bpmon/scanner"
)

// newChooser returns a cuff chooser. On a terminal it prompts the user to
// pick from the scan results; otherwise it takes the strongest signal so the
// tool stays scriptable. A non-empty preferred address bypasses the prompt.
func newChooser(preferred string) func(cuffs []scanner.Cuff) (int, error) {
	return chooserFunc(preferred, term.IsTerminal(int(os.Stdin.Fd())))
}

func chooserFunc(preferred string, interactive bool) func(cuffs []scanner.Cuff) (int, error) {
	return func(cuffs []scanner.Cuff) (int, error) {
		if preferred != "" {
			for i, c := range cuffs {
				if strings.EqualFold(c.Address, preferred) {
					return i, nil
				}
			}
			return 0, fmt.Errorf("%w: device %s not found in scan results", device.ErrConnectionFailed, preferred)
		}

		if len(cuffs) == 1 || !interactive {
			return 0, nil
		}

		return promptForCuff(cuffs)
	}
}

func promptForCuff(cuffs []scanner.Cuff) (int, error) {
	bold := color.New(color.Bold)
	bold.Println("Discovered blood pressure cuffs:")
	for i, c := range cuffs {
		name := c.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("  [%d] %s  %s  %d dBm\n", i+1, name, c.Address, c.RSSI)
	}
	fmt.Print("Select cuff (Enter to cancel): ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("%w: %v", device.ErrUserCancelled, err)
	}

	line = strings.TrimSpace(line)
	if line == "" || strings.EqualFold(line, "q") {
		return 0, device.ErrUserCancelled
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(cuffs) {
		return 0, fmt.Errorf("%w: invalid selection %q", device.ErrUserCancelled, line)
	}
	return n - 1, nil
}
