// Package capture provides the capture-device collaborator: acquiring a
// camera stream, exposing its latest frame and its native refresh signal.
package capture

import "fmt"

// Constraints are the requested capture settings.
type Constraints struct {
	// DeviceIndex selects the camera (0 is the system default).
	DeviceIndex int `json:"device_index"`

	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Native refresh rate in FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100
}

// Capture limits.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConstraints returns the interview preset: 640x480 at 30 FPS.
func DefaultConstraints() Constraints {
	return Constraints{
		DeviceIndex: 0,
		Width:       640,
		Height:      480,
		Framerate:   30,
		Quality:     80,
	}
}

// HDConstraints returns a 1280x720 preset for better landmark accuracy.
func HDConstraints() Constraints {
	c := DefaultConstraints()
	c.Width = 1280
	c.Height = 720
	return c
}

// Validate checks if the constraint values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Constraints) Validate() []string {
	var errors []string

	if c.DeviceIndex < 0 {
		errors = append(errors, "device_index must not be negative")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
