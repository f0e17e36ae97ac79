package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-proctor/internal/timeutil"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/metrics"
)

// DefaultObjectInterval is the minimum time between object detection runs.
const DefaultObjectInterval = 500 * time.Millisecond

// Cycle reports the outcome of one refresh tick.
type Cycle struct {
	Seq        uint64
	Skipped    bool // no frame was ready
	Discarded  bool // cancelled while inference was in flight
	ObjectsRan bool
	Events     []ledger.Event
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Engine  *Engine
	Faces   detection.FaceModel
	Objects detection.ObjectModel // nil disables object detection

	// ObjectInterval throttles the object model. Zero uses
	// DefaultObjectInterval.
	ObjectInterval time.Duration

	// MinObjectConfidence drops weaker object detections.
	MinObjectConfidence float64

	Clock   timeutil.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// OnCycle, when set, is called after every tick.
	OnCycle func(Cycle)
}

// Loop is the detection scheduler. A Loop runs at most one cycle at a
// time; the next refresh is only received after the current cycle is
// applied.
type Loop struct {
	cfg        LoopConfig
	clock      timeutil.Clock
	logger     *slog.Logger
	lastObject time.Time
}

// NewLoop creates a loop.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.ObjectInterval <= 0 {
		cfg.ObjectInterval = DefaultObjectInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:    cfg,
		clock:  timeutil.OrReal(cfg.Clock),
		logger: logger.With("component", "detection-loop"),
	}
}

// Run processes refresh ticks from stream until ctx is cancelled or the
// refresh channel is closed. Inference failures never stop the loop.
func (l *Loop) Run(ctx context.Context, stream capture.Stream) error {
	l.logger.Info("detection loop started", "stream", stream.ID())
	defer l.logger.Info("detection loop stopped", "stream", stream.ID())

	refresh := stream.Refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-refresh:
			if !ok {
				return nil
			}
			c := l.cycle(ctx, stream)
			if l.cfg.OnCycle != nil {
				l.cfg.OnCycle(c)
			}
		}
	}
}

func (l *Loop) cycle(ctx context.Context, stream capture.Stream) Cycle {
	frame, ok := stream.Frame()
	if !ok {
		l.cfg.Metrics.Skipped()
		return Cycle{Skipped: true}
	}

	start := l.clock.Now()
	obs := Observation{}

	faces, err := l.cfg.Faces.EstimateFaces(ctx, frame)
	if err != nil {
		l.cfg.Metrics.FaceError()
		l.logger.Debug("face inference failed", "seq", frame.Seq, "error", err)
	} else {
		obs.Faces = faces
	}

	if l.cfg.Objects != nil && (l.lastObject.IsZero() || start.Sub(l.lastObject) >= l.cfg.ObjectInterval) {
		l.lastObject = start
		obs.ObjectsRan = true
		l.cfg.Metrics.ObjectCycle()
		objects, err := l.cfg.Objects.Detect(ctx, frame)
		if err != nil {
			l.cfg.Metrics.ObjectError()
			l.logger.Debug("object inference failed", "seq", frame.Seq, "error", err)
		} else {
			obs.Objects = detection.FilterConfidence(objects, l.cfg.MinObjectConfidence)
		}
	}

	if ctx.Err() != nil {
		l.cfg.Metrics.Discarded()
		return Cycle{Seq: frame.Seq, Discarded: true, ObjectsRan: obs.ObjectsRan}
	}

	events := l.cfg.Engine.Process(obs, start)
	l.cfg.Metrics.ObserveCycle(l.clock.Since(start))
	return Cycle{Seq: frame.Seq, ObjectsRan: obs.ObjectsRan, Events: events}
}
