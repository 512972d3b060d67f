package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter shows a single-line countdown while a scan runs. Single
// use: Start once, Stop once. Phases listed in stopPhases end the display
// when reported via Callback.
type progressPrinter struct {
	prefix     string
	duration   time.Duration
	phase      atomic.Value // string
	stopPhases map[string]struct{}

	startTime time.Time
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

func newProgressPrinter(prefix, phase string, duration time.Duration, stopPhases ...string) *progressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	pp := &progressPrinter{
		prefix:     prefix,
		duration:   duration,
		stopPhases: stopSet,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	pp.phase.Store(phase)
	return pp
}

// Start begins displaying progress updates in a background goroutine.
func (p *progressPrinter) Start() {
	p.startTime = time.Now()
	fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				remaining := p.duration - time.Since(p.startTime)
				if p.duration > 0 && remaining > 0 {
					fmt.Printf("\r%s (%s %ds)   ", p.prefix, phase, int(remaining.Seconds()+0.5))
				} else {
					fmt.Printf("\r%s (%s...)   ", p.prefix, phase)
				}
			}
		}
	}()
}

// Callback returns a progress callback that updates the displayed phase and
// stops the printer when a stop phase is reached. Safe for concurrent use.
func (p *progressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop ends the display and clears the line. Safe to call multiple times.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		<-p.done
		fmt.Print(clearLineSequence)
	})
}
