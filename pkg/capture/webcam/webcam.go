// Package webcam implements capture.Device on a local camera via gocv.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// Device opens cameras by index.
type Device struct {
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

// New creates a webcam device.
func New(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		logger:  logger.With("component", "webcam"),
		streams: make(map[string]*stream),
	}
}

// Acquire opens the camera selected by c.DeviceIndex and starts reading
// frames at its native rate.
func (d *Device) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if errs := c.Validate(); len(errs) > 0 {
		return nil, &capture.AcquisitionError{Device: d.name(c), Err: fmt.Errorf("invalid constraints: %v", errs)}
	}
	if err := ctx.Err(); err != nil {
		return nil, &capture.AcquisitionError{Device: d.name(c), Err: err}
	}

	vc, err := gocv.OpenVideoCapture(c.DeviceIndex)
	if err != nil {
		return nil, &capture.AcquisitionError{Device: d.name(c), Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &capture.AcquisitionError{Device: d.name(c), Err: errors.New("camera not opened")}
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))

	runCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		id:          uuid.NewString(),
		constraints: c,
		vc:          vc,
		refresh:     make(chan time.Time, 1),
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      d.logger,
	}
	go s.read(runCtx)

	d.mu.Lock()
	d.streams[s.id] = s
	d.mu.Unlock()
	d.logger.Info("camera acquired", "stream", s.id, "device", c.DeviceIndex,
		"width", c.Width, "height", c.Height, "fps", c.Framerate)
	return s, nil
}

// Release stops the reader and closes the camera. Releasing an unknown
// stream is a no-op.
func (d *Device) Release(cs capture.Stream) error {
	if cs == nil {
		return errors.New("webcam: release of nil stream")
	}
	d.mu.Lock()
	s, ok := d.streams[cs.ID()]
	delete(d.streams, cs.ID())
	d.mu.Unlock()
	if !ok {
		return nil
	}

	s.cancel()
	<-s.done
	d.logger.Info("camera released", "stream", s.id)
	return s.vc.Close()
}

func (d *Device) name(c capture.Constraints) string {
	return fmt.Sprintf("webcam%d", c.DeviceIndex)
}

type stream struct {
	id          string
	constraints capture.Constraints
	vc          *gocv.VideoCapture
	refresh     chan time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	logger      *slog.Logger

	mu     sync.RWMutex
	latest capture.Frame
	ready  bool
}

func (s *stream) ID() string                       { return s.id }
func (s *stream) Constraints() capture.Constraints { return s.constraints }
func (s *stream) Refresh() <-chan time.Time        { return s.refresh }

func (s *stream) Frame() (capture.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ready
}

// read grabs frames until ctx is cancelled. Refresh signals are dropped
// while the previous one is unconsumed.
func (s *stream) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.refresh)

	img := gocv.NewMat()
	defer img.Close()
	params := []int{int(gocv.IMWriteJpegQuality), s.constraints.Quality}

	var seq uint64
	for ctx.Err() == nil {
		if ok := s.vc.Read(&img); !ok || img.Empty() {
			// Cameras may return empty frames while warming up.
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			s.logger.Warn("jpeg encode failed", "stream", s.id, "error", err)
			continue
		}
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		seq++
		now := time.Now()
		s.mu.Lock()
		s.latest = capture.Frame{Seq: seq, JPEG: jpeg, Width: img.Cols(), Height: img.Rows(), At: now}
		s.ready = true
		s.mu.Unlock()

		select {
		case s.refresh <- now:
		default:
		}
	}
}
