package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/timeutil"
	"github.com/teslashibe/go-proctor/pkg/capture"
)

// MIMETypeMJPEG is the content type of a raw concatenated JPEG stream.
const MIMETypeMJPEG = "video/x-motion-jpeg"

// DefaultTimeslice is how often an MJPEG recorder delivers a chunk.
const DefaultTimeslice = time.Second

// MJPEGConfig configures an MJPEG recorder.
type MJPEGConfig struct {
	// Timeslice is the chunk delivery period.
	Timeslice time.Duration

	// Clock drives polling and timeslices. Nil uses the real clock.
	Clock timeutil.Clock

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// MJPEG records every new frame of a stream as consecutive JPEG images.
// It polls the stream at its framerate and does not consume the
// stream's refresh signal, which belongs to the detection loop.
type MJPEG struct {
	cfg    MJPEGConfig
	clock  timeutil.Clock
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	flush   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewMJPEG creates an MJPEG recorder.
func NewMJPEG(cfg MJPEGConfig) *MJPEG {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MJPEG{
		cfg:    cfg,
		clock:  timeutil.OrReal(cfg.Clock),
		logger: logger.With("component", "recorder"),
		flush:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// MJPEGFactory returns a Factory producing MJPEG recorders with cfg.
func MJPEGFactory(cfg MJPEGConfig) Factory {
	return func() Recorder { return NewMJPEG(cfg) }
}

// MIMEType implements Recorder.
func (r *MJPEG) MIMEType() string { return MIMETypeMJPEG }

// Start implements Recorder.
func (r *MJPEG) Start(stream capture.Stream, onData func(Chunk)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	select {
	case <-r.stop:
		return ErrStopped
	default:
	}
	r.started = true

	fps := stream.Constraints().Framerate
	if fps <= 0 {
		fps = capture.DefaultConstraints().Framerate
	}
	go r.run(stream, onData, time.Second/time.Duration(fps))
	return nil
}

// RequestFlush implements Recorder.
func (r *MJPEG) RequestFlush() {
	select {
	case r.flush <- struct{}{}:
	default:
	}
}

// Stop implements Recorder. A recorder that was never started confirms
// immediately.
func (r *MJPEG) Stop() <-chan struct{} {
	r.once.Do(func() {
		close(r.stop)
		r.mu.Lock()
		started := r.started
		r.mu.Unlock()
		if !started {
			close(r.done)
		}
	})
	return r.done
}

func (r *MJPEG) run(stream capture.Stream, onData func(Chunk), interval time.Duration) {
	defer close(r.done)

	poll := r.clock.NewTicker(interval)
	defer poll.Stop()
	slice := r.clock.NewTicker(r.cfg.Timeslice)
	defer slice.Stop()

	var (
		pending []byte
		frames  int
		lastSeq uint64
		seq     int
	)
	emit := func() {
		if frames == 0 {
			return
		}
		onData(Chunk{Seq: seq, Data: pending, Frames: frames, At: r.clock.Now()})
		seq++
		pending, frames = nil, 0
	}
	grab := func() {
		f, ok := stream.Frame()
		if !ok || f.Seq == lastSeq || len(f.JPEG) == 0 {
			return
		}
		lastSeq = f.Seq
		pending = append(pending, f.JPEG...)
		frames++
	}

	for {
		select {
		case <-r.stop:
			grab()
			emit()
			r.logger.Debug("recorder stopped", "chunks", seq)
			return
		case <-r.flush:
			grab()
			emit()
		case <-poll.C():
			grab()
		case <-slice.C():
			emit()
		}
	}
}
