// Package session owns the camera/upload session lifecycle and the
// detection scheduling pipeline: at most one detection request in flight per
// session, a bounded pending count for backpressure, and completion-side
// reconciliation of results with the current session state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/ecosort/wastelens/internal/capture"
	"github.com/ecosort/wastelens/internal/detect"
	"github.com/ecosort/wastelens/internal/logger"
	"github.com/ecosort/wastelens/internal/stats"
	"github.com/ecosort/wastelens/internal/telemetry"
)

// Detector submits one frame to the detection service. Failures come back as
// a result with Success=false, never as a panic or a raw transport error.
type Detector interface {
	DetectFrame(ctx context.Context, frame *capture.Frame) *detect.Result
}

// Callbacks are the observation hooks the UI glue subscribes to. All hooks
// are optional and are invoked outside the session lock.
type Callbacks struct {
	OnStatistics      func(stats.Snapshot)
	OnDetectionFailed func(error)
	OnThroughput      func(fps float64)
}

// Config is fixed at session creation.
type Config struct {
	TickInterval        time.Duration
	MaxQueueSize        int
	ConfidenceThreshold float64
	FPSReportInterval   time.Duration
}

// setDefaults fills in the documented defaults.
func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 5
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.25
	}
	if c.FPSReportInterval <= 0 {
		c.FPSReportInterval = time.Second
	}
}

// Session is one capture-and-detect interaction, from source acquisition to
// stop. All mutable state is guarded by mu; the tick loop, dispatch
// completions, and user-triggered transitions are the only writers.
type Session struct {
	id        string
	cfg       Config
	detector  Detector
	clock     clock.Clock
	logger    *logger.Logger
	callbacks Callbacks
	rate      *telemetry.RateTracker

	mu         sync.Mutex
	state      State
	source     capture.Source
	inFlight   bool
	pending    int
	generation uint64
	snapshot   stats.Snapshot
	cancel     context.CancelFunc

	dispatches sync.WaitGroup
}

// New creates a session in the Idle state.
func New(cfg Config, detector Detector, clk clock.Clock, callbacks Callbacks, log *logger.Logger) *Session {
	cfg.setDefaults()
	if clk == nil {
		clk = clock.New()
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		detector:  detector,
		clock:     clk,
		logger:    log,
		callbacks: callbacks,
		state:     StateIdle,
	}
	s.rate = telemetry.NewRateTracker(cfg.FPSReportInterval, clk, callbacks.OnThroughput, log)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the latest statistics snapshot.
func (s *Session) Snapshot() stats.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Pending returns the number of submitted-but-incomplete detections.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Start acquires the capture source and moves Idle -> Active. The tick loop
// and throughput reporter start here but submit nothing until live mode is
// enabled.
func (s *Session) Start(source capture.Source) error {
	if source == nil {
		return ErrNoSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransitionTo(StateActive) {
		return ErrInvalidTransition
	}

	s.state = StateActive
	s.source = source
	s.snapshot = stats.Snapshot{}
	s.rate.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.runLoop(ctx)
	go s.rate.Run(ctx)

	s.logger.Info("Session started", "session_id", s.id)
	return nil
}

// SetLiveMode enables or disables continuous submission. Enabling is
// rejected when no source is held; disabling while merely Active is a no-op.
func (s *Session) SetLiveMode(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		if s.state == StateLiveDetecting {
			return nil
		}
		if s.source == nil || !s.state.CanTransitionTo(StateLiveDetecting) {
			return ErrInvalidTransition
		}
		s.state = StateLiveDetecting
		s.logger.Info("Live detection enabled", "session_id", s.id)
		return nil
	}

	if s.state == StateLiveDetecting {
		// In-flight work completes; no new frame is scheduled.
		s.state = StateActive
		s.logger.Info("Live detection disabled", "session_id", s.id)
	}
	return nil
}

// Stop cancels scheduling, clears the pending count, and releases the
// capture source. An in-flight detection call runs to completion; its result
// is discarded on arrival. The session re-arms to Idle immediately.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("Failed to release capture source", "session_id", s.id, "error", err)
		}
		s.source = nil
	}
	s.pending = 0
	// Bump the generation so a completion from before this stop is stale and
	// cannot touch the restarted session. The in-flight flag is cleared here
	// because the stale completion will no longer clear it.
	s.inFlight = false
	s.generation++
	s.state = StateStopped

	// Stopped -> Idle is immediate; the session is ready for re-acquisition.
	s.state = StateIdle
	s.logger.Info("Session stopped", "session_id", s.id)
}

// CaptureOnce performs a manual single-shot detection. It is a foreground,
// user-waited call: it still respects single-flight, and a request arriving
// while a live-mode detection is in flight is rejected with ErrBusy rather
// than queued. Failures are returned to the caller, not silently dropped.
func (s *Session) CaptureOnce(ctx context.Context) (*detect.Result, error) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateLiveDetecting {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.source == nil {
		s.mu.Unlock()
		return nil, ErrNoSource
	}

	frame, err := s.source.NextFrame()
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, capture.ErrNotReady) || errors.Is(err, capture.ErrExhausted) {
			return nil, ErrNoFrame
		}
		return nil, err
	}

	s.inFlight = true
	s.pending++
	gen := s.generation
	s.mu.Unlock()

	result := s.detector.DetectFrame(ctx, frame)
	s.complete(result, gen)
	return result, nil
}

// complete is the single completion path for both manual and live
// detections: decrement pending, clear the in-flight flag, and reconcile the
// result with the current session state. gen is the generation the dispatch
// was submitted under; Stop bumps the generation, so a result from before the
// stop is stale even when the session has already been restarted, and a stale
// completion must not touch the counters a newer dispatch owns.
func (s *Session) complete(result *detect.Result, gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale detection result", "session_id", s.id)
		return
	}
	if s.pending > 0 {
		s.pending--
	}
	s.inFlight = false

	active := s.state == StateActive || s.state == StateLiveDetecting
	var snap stats.Snapshot
	applied := false
	if active && result.Success {
		snap = stats.Aggregate(result.Detections)
		s.snapshot = snap
		applied = true
	}
	s.mu.Unlock()

	if !active {
		s.logger.Debug("Discarding detection result, session no longer active", "session_id", s.id)
		return
	}

	if !result.Success {
		s.logger.Warn("Detection failed", "session_id", s.id, "error", result.Error)
		if s.callbacks.OnDetectionFailed != nil {
			s.callbacks.OnDetectionFailed(errors.New(result.Error))
		}
		return
	}

	if applied {
		s.rate.Record()
		if s.callbacks.OnStatistics != nil {
			s.callbacks.OnStatistics(snap)
		}
	}
}
