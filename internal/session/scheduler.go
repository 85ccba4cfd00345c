package session

import (
	"context"
	"errors"

	"github.com/ecosort/wastelens/internal/capture"
)

// runLoop drives the scheduler on a fixed cadence while the session lives.
// The ticker comes from the injected clock so tests can feed synthetic ticks.
func (s *Session) runLoop(ctx context.Context) {
	ticker := s.clock.Ticker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.dispatches.Wait()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one scheduling decision:
//
//  1. skip while a detection is in flight (single-flight)
//  2. skip while the pending count is at capacity (backpressure)
//  3. pull a frame; skip if the source has nothing new
//  4. submit the frame asynchronously
//
// Ticks that skip have no side effect. A frame skipped here is gone for
// good; the next tick captures a fresher one.
func (s *Session) tick() {
	s.mu.Lock()

	if s.state != StateLiveDetecting {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	if s.pending >= s.cfg.MaxQueueSize {
		s.mu.Unlock()
		return
	}

	frame, err := s.source.NextFrame()
	if err != nil {
		if errors.Is(err, capture.ErrExhausted) || errors.Is(err, capture.ErrClosed) {
			// Source lost: stop continuous submission, keep the session.
			s.state = StateActive
			s.logger.Warn("Capture source lost, live detection disabled", "session_id", s.id)
		}
		s.mu.Unlock()
		return
	}

	s.inFlight = true
	s.pending++
	gen := s.generation
	s.mu.Unlock()

	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		// The detection call is deliberately not tied to the loop context:
		// stopping the session cancels scheduling, while an in-flight call
		// runs to completion and is discarded on arrival. The client's own
		// timeout bounds the wait.
		result := s.detector.DetectFrame(context.Background(), frame)
		s.complete(result, gen)
	}()
}
