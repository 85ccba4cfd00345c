package capture

import (
	"sync"
	"time"
)

// StillSource yields exactly one frame (a static upload) and then reports
// exhaustion.
type StillSource struct {
	mu       sync.Mutex
	frame    *Frame
	consumed bool
	closed   bool
}

// NewStillSource creates a source for a single uploaded image.
func NewStillSource(data []byte, confidence float64) *StillSource {
	return &StillSource{
		frame: &Frame{
			Data:       data,
			Timestamp:  time.Now(),
			Confidence: confidence,
		},
	}
}

// NextFrame returns the upload once, then ErrExhausted.
func (s *StillSource) NextFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.consumed {
		return nil, ErrExhausted
	}
	s.consumed = true
	return s.frame, nil
}

// Close releases the source.
func (s *StillSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// StreamSource buffers frames pushed from a live capture device (the browser
// camera in practice). Only the freshest unconsumed frame is kept: under a
// slow consumer older frames are dropped, which keeps perceived latency
// bounded at the cost of completeness.
type StreamSource struct {
	mu     sync.Mutex
	latest *Frame
	closed bool
}

// NewStreamSource creates an empty live stream source.
func NewStreamSource() *StreamSource {
	return &StreamSource{}
}

// Push replaces the pending frame with a fresher one. It reports whether the
// frame was accepted; pushes to a closed source are rejected.
func (s *StreamSource) Push(frame *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || frame == nil {
		return false
	}
	s.latest = frame
	return true
}

// NextFrame returns the pending frame, or ErrNotReady when the device has not
// produced a new one since the last call.
func (s *StreamSource) NextFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.latest == nil {
		return nil, ErrNotReady
	}
	frame := s.latest
	s.latest = nil
	return frame, nil
}

// Close marks the device as lost. Pending frames are discarded.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.latest = nil
	return nil
}
