// Package monitor turns per-frame detections into ledger events.
//
// The Engine applies one frame's observation to the hysteresis conditions
// and the object classifier. The Loop drives the Engine from a capture
// stream's refresh signal with at most one cycle in flight.
package monitor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/alerts"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/hysteresis"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/metrics"
)

// Condition names in the hysteresis tracker.
const (
	CondNoFace        = "no_face"
	CondLookingAway   = "looking_away"
	CondMultipleFaces = "multiple_faces"
)

// Event labels.
const (
	LabelNoFace        = "No face"
	LabelMultipleFaces = "Multiple faces"
	LabelLookingAway   = "Looking away"
	LabelPhone         = "Phone detected"
	LabelBook          = "Book/notes detected"
	LabelDevice        = "Extra device detected"
)

// Conditions holds the timing of each tracked condition.
type Conditions struct {
	NoFace        hysteresis.Config `json:"no_face"`
	LookingAway   hysteresis.Config `json:"looking_away"`
	MultipleFaces hysteresis.Config `json:"multiple_faces"`
}

// DefaultConditions returns the tuned timings.
func DefaultConditions() Conditions {
	return Conditions{
		NoFace:        hysteresis.Config{Threshold: 3 * time.Second, Throttle: 10 * time.Second},
		LookingAway:   hysteresis.Config{Threshold: 2 * time.Second, Throttle: 5 * time.Second},
		MultipleFaces: hysteresis.Config{Threshold: 0, Throttle: 5 * time.Second},
	}
}

// Observation is the detection output of one frame.
type Observation struct {
	Faces []detection.Face

	// Objects is only meaningful when ObjectsRan is set.
	Objects    []detection.Object
	ObjectsRan bool
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Analyzer   *gaze.Analyzer
	Classifier *alerts.Classifier
	Ledger     *ledger.Ledger
	Conditions Conditions

	// Elapsed maps a timestamp to elapsed session time for event stamps.
	Elapsed func(now time.Time) time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Engine applies observations to the ledger. It is safe for concurrent
// use; Process and Reset are serialized.
type Engine struct {
	mu         sync.Mutex
	analyzer   *gaze.Analyzer
	classifier *alerts.Classifier
	tracker    *hysteresis.Tracker
	ledger     *ledger.Ledger
	elapsed    func(time.Time) time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
	last       gaze.Result
}

// NewEngine creates an engine. Missing analyzer, classifier and ledger
// get defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Analyzer == nil {
		cfg.Analyzer = gaze.NewAnalyzer(gaze.MediaPipeLandmarks(), gaze.DefaultThresholds())
	}
	if cfg.Classifier == nil {
		cfg.Classifier = alerts.NewClassifier(nil)
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.Elapsed == nil {
		cfg.Elapsed = func(time.Time) time.Duration { return 0 }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := hysteresis.NewTracker()
	t.Add(CondNoFace, cfg.Conditions.NoFace)
	t.Add(CondLookingAway, cfg.Conditions.LookingAway)
	t.Add(CondMultipleFaces, cfg.Conditions.MultipleFaces)

	return &Engine{
		analyzer:   cfg.Analyzer,
		classifier: cfg.Classifier,
		tracker:    t,
		ledger:     cfg.Ledger,
		elapsed:    cfg.Elapsed,
		metrics:    cfg.Metrics,
		logger:     logger.With("component", "monitor"),
	}
}

// Ledger returns the ledger events are recorded to.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Tracker returns the hysteresis tracker.
func (e *Engine) Tracker() *hysteresis.Tracker { return e.tracker }

// LastResult returns the gaze analysis of the most recent frame.
func (e *Engine) LastResult() gaze.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Process applies obs at now and returns the events it recorded, in
// order: no face, multiple faces, looking away, then object alerts.
func (e *Engine) Process(obs Observation, now time.Time) []ledger.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.analyzer.Analyze(obs.Faces)
	e.last = res
	elapsed := e.elapsed(now)

	var out []ledger.Event
	if f, ok := e.observe(CondNoFace, res.NoFace(), now); ok {
		details := fmt.Sprintf("No face in frame for %.1fs", f.ActiveFor.Seconds())
		out = e.record(out, ledger.NoFace, LabelNoFace, details, elapsed, now)
	}
	if _, ok := e.observe(CondMultipleFaces, res.MultipleFaces(), now); ok {
		details := fmt.Sprintf("%d faces in frame", res.Faces)
		out = e.record(out, ledger.MultipleFaces, LabelMultipleFaces, details, elapsed, now)
	}
	if f, ok := e.observe(CondLookingAway, res.Determined && res.LookingAway, now); ok {
		details := fmt.Sprintf("Gaze (%.2f, %.2f) yaw %.2f pitch %.2f for %.1fs",
			res.Gaze.X, res.Gaze.Y, res.Yaw, res.Pitch, f.ActiveFor.Seconds())
		out = e.record(out, ledger.FocusLost, LabelLookingAway, details, elapsed, now)
	}

	if obs.ObjectsRan {
		for _, a := range e.classifier.Classify(obs.Objects) {
			counter, label := alertCounter(a.Category)
			details := fmt.Sprintf("%s x%d (confidence %.2f)", strings.Join(a.Labels, ", "), a.Count, a.MaxConfidence)
			out = e.record(out, counter, label, details, elapsed, now)
		}
	}

	if len(out) > 0 {
		e.metrics.SetScore(e.ledger.Score())
	}
	return out
}

func (e *Engine) observe(name string, active bool, now time.Time) (hysteresis.Firing, bool) {
	f, ok, err := e.tracker.Observe(name, active, now)
	if err != nil {
		e.logger.Error("hysteresis observe failed", "condition", name, "error", err)
		return hysteresis.Firing{}, false
	}
	return f, ok
}

func (e *Engine) record(out []ledger.Event, counter ledger.Counter, label, details string, elapsed time.Duration, now time.Time) []ledger.Event {
	ev := ledger.NewEvent(ledger.KindAlert, label, details, elapsed, now)
	if err := e.ledger.Record(counter, ev); err != nil {
		e.logger.Error("ledger record failed", "counter", counter, "error", err)
		return out
	}
	ev.Counter = counter
	e.metrics.Event(label, string(ledger.KindAlert))
	e.logger.Info("event", "label", label, "time", ev.Time, "details", details)
	return append(out, ev)
}

func alertCounter(c alerts.Category) (ledger.Counter, string) {
	switch c {
	case alerts.Phone:
		return ledger.PhoneDetected, LabelPhone
	case alerts.Book:
		return ledger.BookDetected, LabelBook
	default:
		return ledger.DeviceDetected, LabelDevice
	}
}

// Clear drops the active-since timers of every condition, so the next
// stream starts without carried-over state.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.ClearAll()
	e.last = gaze.Result{}
}

// Reset clears the ledger and every condition timer in one step.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.ResetAll()
	e.ledger.Reset()
	e.last = gaze.Result{}
	e.metrics.SetScore(ledger.Score(ledger.Counters{}))
}
