package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame is one captured image, JPEG-encoded.
type Frame struct {
	Seq    uint64    `json:"seq"`
	JPEG   []byte    `json:"-"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	At     time.Time `json:"at"`
}

// Stream is an acquired capture stream. Its media track is shared between
// the detection loop and the recorder; only the owner of the Device may
// release it.
type Stream interface {
	// ID identifies this acquisition.
	ID() string

	// Frame returns the current frame. ok is false when no frame is ready yet.
	Frame() (frame Frame, ok bool)

	// Refresh delivers the native refresh signal of the stream. An
	// implementation may close it when the stream is released.
	Refresh() <-chan time.Time

	// Constraints returns the settings the stream was opened with.
	Constraints() Constraints
}

// Device acquires and releases capture streams.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	Release(s Stream) error
}

// ErrAcquisition is the sentinel for camera/microphone unavailability.
var ErrAcquisition = errors.New("capture: device unavailable")

// AcquisitionError wraps the cause of a failed acquisition.
type AcquisitionError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("capture [%s]: acquire failed: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is reports ErrAcquisition so callers can match any acquisition failure.
func (e *AcquisitionError) Is(target error) bool {
	return target == ErrAcquisition
}
