// Package recorder captures a session recording from a capture stream.
//
// A Recorder delivers data incrementally through a callback; the session
// accumulates the chunks in a Buffer and seals them into an Artifact when
// recording stops.
package recorder

import (
	"errors"
	"time"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

var (
	// ErrRevoked is returned when reading an artifact after a reset.
	ErrRevoked = errors.New("recorder: artifact revoked")

	// ErrNoArtifact is returned when no recording has been produced.
	ErrNoArtifact = errors.New("recorder: no artifact")

	// ErrAlreadyStarted is returned by Start on a running recorder.
	ErrAlreadyStarted = errors.New("recorder: already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("recorder: stopped")
)

// Chunk is one piece of encoded recording data.
type Chunk struct {
	Seq    int
	Data   []byte
	Frames int
	At     time.Time
}

// Recorder is attached to a stream for the duration of one recording.
type Recorder interface {
	// Start begins recording stream. onData may be called from any
	// goroutine until the channel returned by Stop is closed.
	Start(stream capture.Stream, onData func(Chunk)) error

	// RequestFlush asks the recorder to deliver buffered data now.
	RequestFlush()

	// Stop asks the recorder to stop. The returned channel is closed once
	// the recorder has delivered its last chunk. It may never close.
	Stop() <-chan struct{}

	// MIMEType is the content type of the concatenated chunks.
	MIMEType() string
}

// Factory creates a fresh recorder for each recording.
type Factory func() Recorder
