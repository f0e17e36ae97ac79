package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/geometry"
)

// fakeDevice is a mock camera ticked at a fixed framerate.
type fakeDevice struct {
	*capture.MockDevice
}

func newFakeDevice(c capture.Constraints) (*fakeDevice, error) {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			img.Set(x, y, color.RGBA{96, 96, 96, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, err
	}
	return &fakeDevice{MockDevice: capture.NewMockDevice(buf.Bytes())}, nil
}

// drive ticks the current stream until ctx is done.
func (d *fakeDevice) drive(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := d.Last()
			if s == nil || s.Released() {
				continue
			}
			// Tick blocks until the detection loop consumes the signal
			// and fails once the stream is released.
			_ = s.Tick(now)
		}
	}
}

// syntheticFace is a frontal face centered in the frame, in the YuNet
// landmark layout.
func syntheticFace(c capture.Constraints) detection.Face {
	w, h := float64(c.Width), float64(c.Height)
	box := detection.Box{X: w * 0.35, Y: h * 0.25, Width: w * 0.3, Height: h * 0.45}
	cx := box.X + box.Width/2
	eyeY := box.Y + box.Height*0.4
	return detection.Face{
		Box:        box,
		Confidence: 0.95,
		Landmarks: []geometry.Point{
			{X: cx - box.Width*0.2, Y: eyeY},
			{X: cx + box.Width*0.2, Y: eyeY},
			{X: cx, Y: eyeY + box.Height*0.05},
			{X: cx - box.Width*0.15, Y: eyeY + box.Height*0.3},
			{X: cx + box.Width*0.15, Y: eyeY + box.Height*0.3},
			{X: box.X, Y: eyeY},
			{X: box.X + box.Width, Y: eyeY},
		},
	}
}
