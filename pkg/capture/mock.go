package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockDevice is a capture device for tests and for running without a camera.
type MockDevice struct {
	mu           sync.Mutex
	frame        []byte
	err          error
	delay        time.Duration
	acquisitions int
	releases     int
	active       map[string]*MockStream
	last         *MockStream
}

// NewMockDevice creates a device whose streams serve jpeg as every frame.
func NewMockDevice(jpeg []byte) *MockDevice {
	return &MockDevice{frame: jpeg, active: make(map[string]*MockStream)}
}

// FailWith makes subsequent acquisitions fail with err (nil clears it).
func (d *MockDevice) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetDelay makes Acquire block for delay before returning.
func (d *MockDevice) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Acquisitions returns the number of successful acquisitions.
func (d *MockDevice) Acquisitions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquisitions
}

// Releases returns the number of releases.
func (d *MockDevice) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

// Active returns the number of streams acquired and not yet released.
func (d *MockDevice) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Last returns the most recently acquired stream, or nil.
func (d *MockDevice) Last() *MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Acquire implements Device.
func (d *MockDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	delay, err := d.delay, d.err
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &AcquisitionError{Device: "mock", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, &AcquisitionError{Device: "mock", Err: err}
	}

	s := &MockStream{
		id:          uuid.NewString(),
		constraints: c,
		jpeg:        d.frame,
		refresh:     make(chan time.Time, 1),
		done:        make(chan struct{}),
	}
	d.mu.Lock()
	d.acquisitions++
	d.active[s.id] = s
	d.last = s
	d.mu.Unlock()
	return s, nil
}

// Release implements Device. Releasing an unknown stream is a no-op.
func (d *MockDevice) Release(s Stream) error {
	if s == nil {
		return errors.New("capture: release of nil stream")
	}
	d.mu.Lock()
	ms, ok := d.active[s.ID()]
	if ok {
		delete(d.active, s.ID())
		d.releases++
	}
	d.mu.Unlock()
	if ok {
		ms.close()
	}
	return nil
}

// MockStream is a stream driven by explicit Tick calls.
type MockStream struct {
	id          string
	constraints Constraints
	jpeg        []byte

	mu      sync.Mutex
	seq     uint64
	ready   bool
	closed  bool
	refresh chan time.Time
	done    chan struct{}
}

// ID implements Stream.
func (s *MockStream) ID() string { return s.id }

// Constraints implements Stream.
func (s *MockStream) Constraints() Constraints { return s.constraints }

// Refresh implements Stream.
func (s *MockStream) Refresh() <-chan time.Time { return s.refresh }

// Frame implements Stream.
func (s *MockStream) Frame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Frame{}, false
	}
	return Frame{
		Seq:    s.seq,
		JPEG:   s.jpeg,
		Width:  s.constraints.Width,
		Height: s.constraints.Height,
		At:     time.Now(),
	}, true
}

// Publish makes a new frame current without signalling a refresh.
func (s *MockStream) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.ready = true
}

// Tick publishes a new frame and delivers one refresh signal at now.
// It blocks while the previous signal is still unconsumed.
func (s *MockStream) Tick(now time.Time) error {
	s.Publish()
	return s.signal(now)
}

// TickEmpty delivers a refresh signal without a ready frame.
func (s *MockStream) TickEmpty(now time.Time) error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	return s.signal(now)
}

// Released reports whether the device released this stream.
func (s *MockStream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockStream) signal(now time.Time) error {
	select {
	case <-s.done:
		return fmt.Errorf("capture: stream %s released", s.id)
	default:
	}
	select {
	case s.refresh <- now:
		return nil
	case <-s.done:
		return fmt.Errorf("capture: stream %s released", s.id)
	}
}

func (s *MockStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
