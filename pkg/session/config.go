package session

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/alerts"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// DefaultStopTimeout bounds the wait for a recorder's stop confirmation.
const DefaultStopTimeout = 2 * time.Second

// Config holds session tunables.
type Config struct {
	// Candidate is shown on reports.
	Candidate string `json:"candidate"`

	Constraints capture.Constraints `json:"constraints"`
	Conditions  monitor.Conditions  `json:"conditions"`
	Landmarks   gaze.Landmarks      `json:"landmarks"`
	Thresholds  gaze.Thresholds     `json:"thresholds"`
	Matchers    []alerts.Matcher    `json:"matchers,omitempty"`

	// ObjectInterval is the minimum time between object detection runs.
	ObjectInterval time.Duration `json:"object_interval"`

	// MinObjectConfidence drops weaker object detections.
	MinObjectConfidence float64 `json:"min_object_confidence"`

	// StopTimeout bounds StopRecording.
	StopTimeout time.Duration `json:"stop_timeout"`
}

// DefaultConfig returns production defaults for a MediaPipe-compatible
// face model.
func DefaultConfig() Config {
	return Config{
		Candidate:           "",
		Constraints:         capture.DefaultConstraints(),
		Conditions:          monitor.DefaultConditions(),
		Landmarks:           gaze.MediaPipeLandmarks(),
		Thresholds:          gaze.DefaultThresholds(),
		ObjectInterval:      monitor.DefaultObjectInterval,
		MinObjectConfidence: 0.5,
		StopTimeout:         DefaultStopTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if errs := c.Constraints.Validate(); len(errs) > 0 {
		return fmt.Errorf("session: invalid constraints: %v", errs)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("session: stop timeout must be positive, got %v", c.StopTimeout)
	}
	if c.ObjectInterval < 0 {
		return fmt.Errorf("session: object interval must not be negative, got %v", c.ObjectInterval)
	}
	timings := []struct {
		name string
		d    time.Duration
	}{
		{"no_face threshold", c.Conditions.NoFace.Threshold},
		{"no_face throttle", c.Conditions.NoFace.Throttle},
		{"looking_away threshold", c.Conditions.LookingAway.Threshold},
		{"looking_away throttle", c.Conditions.LookingAway.Throttle},
		{"multiple_faces threshold", c.Conditions.MultipleFaces.Threshold},
		{"multiple_faces throttle", c.Conditions.MultipleFaces.Throttle},
	}
	for _, tm := range timings {
		if tm.d < 0 {
			return fmt.Errorf("session: %s must not be negative, got %v", tm.name, tm.d)
		}
	}
	if c.MinObjectConfidence < 0 || c.MinObjectConfidence > 1 {
		return fmt.Errorf("session: min object confidence must be in [0,1], got %v", c.MinObjectConfidence)
	}
	return nil
}
