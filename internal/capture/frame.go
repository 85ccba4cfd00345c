package capture

import (
	"errors"
	"time"
)

// ErrNotReady indicates the source has no new frame available right now.
var ErrNotReady = errors.New("capture: no frame ready")

// ErrExhausted indicates the source will never produce another frame.
var ErrExhausted = errors.New("capture: source exhausted")

// ErrClosed indicates the source has been released or the device was lost.
var ErrClosed = errors.New("capture: source closed")

// Frame is one captured image. It is immutable after construction and is
// owned by the scheduler from capture until it is submitted or discarded.
type Frame struct {
	Data       []byte
	Timestamp  time.Time
	Confidence float64 // threshold in effect at capture time
}

// Source produces frames on demand. NextFrame must not block beyond a short
// bound; it returns ErrNotReady when no new image data is available,
// ErrExhausted when the source has yielded everything it ever will, and
// ErrClosed after Close.
type Source interface {
	NextFrame() (*Frame, error)
	Close() error
}
