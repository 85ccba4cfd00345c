package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/ecosort/wastelens/internal/logger"
)

func TestRateTracker_Throughput(t *testing.T) {
	clk := clock.NewMock()

	var reported float64
	tracker := NewRateTracker(time.Second, clk, func(fps float64) {
		reported = fps
	}, logger.NewNopLogger())

	// 10 frames over a measured 2-second window
	for i := 0; i < 10; i++ {
		tracker.Record()
	}
	clk.Add(2 * time.Second)

	fps := tracker.Report()
	assert.InDelta(t, 5.0, fps, 0.01)
	assert.InDelta(t, 5.0, reported, 0.01)
}

func TestRateTracker_ResetsAfterReport(t *testing.T) {
	clk := clock.NewMock()
	tracker := NewRateTracker(time.Second, clk, nil, logger.NewNopLogger())

	tracker.Record()
	tracker.Record()
	clk.Add(time.Second)
	assert.InDelta(t, 2.0, tracker.Report(), 0.01)

	// Nothing completed since the reset
	clk.Add(time.Second)
	assert.InDelta(t, 0.0, tracker.Report(), 0.01)
}

func TestRateTracker_ResetDropsIdleGap(t *testing.T) {
	clk := clock.NewMock()
	tracker := NewRateTracker(time.Second, clk, nil, logger.NewNopLogger())

	// Frames from an earlier run, then a long idle stretch
	tracker.Record()
	tracker.Record()
	clk.Add(time.Minute)

	tracker.Reset()
	tracker.Record()
	tracker.Record()
	clk.Add(time.Second)

	// Only the post-reset window counts; neither the idle minute nor the
	// earlier frames dilute the measurement.
	assert.InDelta(t, 2.0, tracker.Report(), 0.01)
}

func TestRateTracker_ZeroElapsed(t *testing.T) {
	clk := clock.NewMock()
	tracker := NewRateTracker(time.Second, clk, nil, logger.NewNopLogger())

	tracker.Record()
	// No time has passed; must not divide by zero
	assert.Equal(t, 0.0, tracker.Report())
}

func TestRateTracker_RunReportsOnInterval(t *testing.T) {
	clk := clock.NewMock()

	reports := make(chan float64, 4)
	tracker := NewRateTracker(time.Second, clk, func(fps float64) {
		reports <- fps
	}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Run(ctx)

	// Give the goroutine a moment to install its ticker before advancing
	time.Sleep(10 * time.Millisecond)

	tracker.Record()
	tracker.Record()
	clk.Add(time.Second)

	select {
	case fps := <-reports:
		assert.InDelta(t, 2.0, fps, 0.01)
	case <-time.After(time.Second):
		t.Fatal("no throughput report received")
	}
}
