// Package config loads proctor settings from the environment.
//
// Values come from Default(), then an optional .env file, then PROCTOR_*
// environment variables. Commands apply flags on top and call Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/session"
)

// Config is the complete server configuration.
type Config struct {
	Addr         string
	LogLevel     string
	AllowOrigins string
	Candidate    string

	Camera capture.Constraints

	FaceModel           string
	ObjectModel         string
	FaceScore           float64
	MinObjectConfidence float64
	ObjectInterval      time.Duration

	Conditions monitor.Conditions

	RecorderTimeslice time.Duration
	StopTimeout       time.Duration

	// ArchivePath is the SQLite report archive. Empty disables archiving.
	ArchivePath string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                ":8080",
		LogLevel:            "info",
		AllowOrigins:        "*",
		Camera:              capture.DefaultConstraints(),
		FaceModel:           "models/face_detection_yunet.onnx",
		ObjectModel:         "models/yolov8n.onnx",
		FaceScore:           0.7,
		MinObjectConfidence: 0.5,
		ObjectInterval:      monitor.DefaultObjectInterval,
		Conditions:          monitor.DefaultConditions(),
		RecorderTimeslice:   recorder.DefaultTimeslice,
		StopTimeout:         session.DefaultStopTimeout,
		ArchivePath:         "proctor.db",
	}
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(Default())
}

// FromEnv overlays PROCTOR_* variables on base.
func FromEnv(base Config) (Config, error) {
	c := base
	e := &envReader{}

	c.Addr = e.str("PROCTOR_ADDR", c.Addr)
	c.LogLevel = e.str("PROCTOR_LOG_LEVEL", c.LogLevel)
	c.AllowOrigins = e.str("PROCTOR_ALLOW_ORIGINS", c.AllowOrigins)
	c.Candidate = e.str("PROCTOR_CANDIDATE", c.Candidate)

	c.Camera.DeviceIndex = e.int("PROCTOR_CAMERA_INDEX", c.Camera.DeviceIndex)
	c.Camera.Width = e.int("PROCTOR_CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = e.int("PROCTOR_CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.Framerate = e.int("PROCTOR_CAMERA_FPS", c.Camera.Framerate)
	c.Camera.Quality = e.int("PROCTOR_CAMERA_QUALITY", c.Camera.Quality)

	c.FaceModel = e.str("PROCTOR_FACE_MODEL", c.FaceModel)
	c.ObjectModel = e.str("PROCTOR_OBJECT_MODEL", c.ObjectModel)
	c.FaceScore = e.float("PROCTOR_FACE_SCORE", c.FaceScore)
	c.MinObjectConfidence = e.float("PROCTOR_OBJECT_CONFIDENCE", c.MinObjectConfidence)
	c.ObjectInterval = e.duration("PROCTOR_OBJECT_INTERVAL", c.ObjectInterval)

	c.Conditions.NoFace.Threshold = e.duration("PROCTOR_NO_FACE_THRESHOLD", c.Conditions.NoFace.Threshold)
	c.Conditions.NoFace.Throttle = e.duration("PROCTOR_NO_FACE_THROTTLE", c.Conditions.NoFace.Throttle)
	c.Conditions.LookingAway.Threshold = e.duration("PROCTOR_LOOKING_AWAY_THRESHOLD", c.Conditions.LookingAway.Threshold)
	c.Conditions.LookingAway.Throttle = e.duration("PROCTOR_LOOKING_AWAY_THROTTLE", c.Conditions.LookingAway.Throttle)
	c.Conditions.MultipleFaces.Threshold = e.duration("PROCTOR_MULTIPLE_FACES_THRESHOLD", c.Conditions.MultipleFaces.Threshold)
	c.Conditions.MultipleFaces.Throttle = e.duration("PROCTOR_MULTIPLE_FACES_THROTTLE", c.Conditions.MultipleFaces.Throttle)

	c.RecorderTimeslice = e.duration("PROCTOR_RECORDER_TIMESLICE", c.RecorderTimeslice)
	c.StopTimeout = e.duration("PROCTOR_STOP_TIMEOUT", c.StopTimeout)
	c.ArchivePath = e.str("PROCTOR_ARCHIVE", c.ArchivePath)

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	return c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []string
	if c.Addr == "" {
		errs = append(errs, "addr must not be empty")
	}
	errs = append(errs, c.Camera.Validate()...)
	if c.FaceScore <= 0 || c.FaceScore > 1 {
		errs = append(errs, "face score must be in (0,1]")
	}
	if c.RecorderTimeslice <= 0 {
		errs = append(errs, "recorder timeslice must be positive")
	}
	sc := c.Session()
	if err := sc.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Session derives the session configuration. Landmarks default to the
// MediaPipe layout; commands using the YuNet backend override them.
func (c *Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.Candidate = c.Candidate
	sc.Constraints = c.Camera
	sc.Conditions = c.Conditions
	sc.ObjectInterval = c.ObjectInterval
	sc.MinObjectConfidence = c.MinObjectConfidence
	sc.StopTimeout = c.StopTimeout
	return sc
}

type envReader struct {
	errs []string
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

// duration accepts Go durations ("2s") or bare milliseconds ("2000").
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}
