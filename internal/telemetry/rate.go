// Package telemetry maintains a rolling frames-processed-per-second
// measurement. Observability only; it never influences scheduling.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ecosort/wastelens/internal/logger"
)

// RateTracker counts completed frames and reports throughput on a fixed
// interval. The clock is injectable so tests can drive synthetic time.
type RateTracker struct {
	mu         sync.Mutex
	clock      clock.Clock
	interval   time.Duration
	logger     *logger.Logger
	onReport   func(fps float64)
	frames     int
	lastReport time.Time
}

// NewRateTracker creates a tracker reporting every interval via onReport.
func NewRateTracker(interval time.Duration, clk clock.Clock, onReport func(float64), log *logger.Logger) *RateTracker {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.New()
	}

	return &RateTracker{
		clock:      clk,
		interval:   interval,
		logger:     log,
		onReport:   onReport,
		lastReport: clk.Now(),
	}
}

// Reset clears the frame counter and restarts the measurement window at now.
// Called when a new session starts so an idle gap between sessions does not
// dilute the first report.
func (t *RateTracker) Reset() {
	t.mu.Lock()
	t.frames = 0
	t.lastReport = t.clock.Now()
	t.mu.Unlock()
}

// Record notes one successfully completed frame.
func (t *RateTracker) Record() {
	t.mu.Lock()
	t.frames++
	t.mu.Unlock()
}

// Report computes throughput since the last report, resets the counter, and
// fires the callback. It returns the computed frames per second.
func (t *RateTracker) Report() float64 {
	t.mu.Lock()
	now := t.clock.Now()
	elapsed := now.Sub(t.lastReport).Seconds()

	var fps float64
	if elapsed > 0 {
		fps = float64(t.frames) / elapsed
	}
	t.frames = 0
	t.lastReport = now
	onReport := t.onReport
	t.mu.Unlock()

	t.logger.Debug("Throughput report", "fps", fps)
	if onReport != nil {
		onReport(fps)
	}
	return fps
}

// Run reports on the configured interval until the context is canceled.
func (t *RateTracker) Run(ctx context.Context) {
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Report()
		}
	}
}
