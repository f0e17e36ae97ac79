package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConstraints_Valid(t *testing.T) {
	for name, c := range map[string]Constraints{"default": DefaultConstraints(), "hd": HDConstraints()} {
		if errs := c.Validate(); len(errs) > 0 {
			t.Errorf("%s constraints invalid: %v", name, errs)
		}
	}
}

func TestConstraints_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Constraints)
		wantErr int
	}{
		{name: "valid", mutate: func(c *Constraints) {}, wantErr: 0},
		{name: "tiny width", mutate: func(c *Constraints) { c.Width = 10 }, wantErr: 1},
		{name: "huge height", mutate: func(c *Constraints) { c.Height = 10000 }, wantErr: 1},
		{name: "zero framerate", mutate: func(c *Constraints) { c.Framerate = 0 }, wantErr: 1},
		{name: "bad quality and device", mutate: func(c *Constraints) { c.Quality = 101; c.DeviceIndex = -1 }, wantErr: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConstraints()
			tc.mutate(&c)
			if errs := c.Validate(); len(errs) != tc.wantErr {
				t.Errorf("Validate: got %d errors (%v), want %d", len(errs), errs, tc.wantErr)
			}
		})
	}
}

func TestAcquisitionError(t *testing.T) {
	cause := errors.New("permission denied")
	err := error(&AcquisitionError{Device: "webcam:0", Err: cause})

	if !errors.Is(err, ErrAcquisition) {
		t.Error("AcquisitionError should match ErrAcquisition")
	}
	if !errors.Is(err, cause) {
		t.Error("AcquisitionError should unwrap to its cause")
	}
}

func TestMockDevice_Lifecycle(t *testing.T) {
	dev := NewMockDevice([]byte{0xff, 0xd8})
	ctx := context.Background()

	s, err := dev.Acquire(ctx, DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ms := s.(*MockStream)

	if _, ok := s.Frame(); ok {
		t.Error("no frame should be ready before the first tick")
	}
	if err := ms.Tick(time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	<-s.Refresh()
	f, ok := s.Frame()
	if !ok || f.Seq != 1 || f.Width != 640 {
		t.Errorf("Frame: got %+v ok=%v", f, ok)
	}

	if dev.Active() != 1 {
		t.Errorf("Active() = %d, want 1", dev.Active())
	}
	if err := dev.Release(s); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !ms.Released() || dev.Active() != 0 || dev.Releases() != 1 {
		t.Error("stream should be released")
	}
	if err := ms.Tick(time.Now()); err == nil {
		t.Error("Tick after release should fail")
	}
	// Releasing twice is a no-op.
	if err := dev.Release(s); err != nil || dev.Releases() != 1 {
		t.Errorf("second Release: err=%v releases=%d", err, dev.Releases())
	}
}

func TestMockDevice_Failure(t *testing.T) {
	dev := NewMockDevice(nil)
	dev.FailWith(errors.New("no camera"))

	_, err := dev.Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if dev.Acquisitions() != 0 {
		t.Errorf("Acquisitions() = %d, want 0", dev.Acquisitions())
	}
}

func TestMockDevice_DelayHonorsContext(t *testing.T) {
	dev := NewMockDevice(nil)
	dev.SetDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := dev.Acquire(ctx, DefaultConstraints()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
