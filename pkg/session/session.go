// Package session owns the proctoring lifecycle: the capture stream, the
// detection loop, the recording, and the ledger they feed.
//
// States move Idle -> Streaming -> (StreamingAndRecording <-> Streaming)
// -> Idle. A recording never outlives its stream: stopping the stream
// first finishes the recording.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/timeutil"
	"github.com/teslashibe/go-proctor/pkg/alerts"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/metrics"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/report"
)

// Lifecycle event labels.
const (
	LabelCameraStarted    = "Camera started"
	LabelCameraStopped    = "Camera stopped"
	LabelCameraError      = "Camera error"
	LabelRecordingStarted = "Recording started"
	LabelRecordingSaved   = "Recording saved"
)

var (
	ErrNotStreaming     = errors.New("session: not streaming")
	ErrAlreadyRecording = errors.New("session: already recording")
)

// State is the lifecycle state.
type State int

const (
	Idle State = iota
	Streaming
	StreamingAndRecording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case StreamingAndRecording:
		return "recording"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Archiver stores reports of sessions cleared by Reset.
type Archiver interface {
	Save(ctx context.Context, r report.Report) (string, error)
}

// Options are the collaborators of a session.
type Options struct {
	Device    capture.Device
	Faces     detection.FaceModel
	Objects   detection.ObjectModel // nil disables object alerts
	Recorders recorder.Factory      // nil disables recording

	Clock   timeutil.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Archive Archiver

	// OnCycle is passed to every detection loop.
	OnCycle func(monitor.Cycle)
}

type recording struct {
	rec       recorder.Recorder
	buf       *recorder.Buffer
	startedAt time.Time
}

// Session is safe for concurrent use. Lifecycle commands are serialized;
// queries never block on a command in progress.
type Session struct {
	cfg     Config
	opts    Options
	clock   timeutil.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	engine  *monitor.Engine

	// opMu serializes lifecycle commands.
	opMu sync.Mutex

	mu        sync.Mutex
	id        string
	state     State
	starting  bool
	stream    capture.Stream
	cancel    context.CancelFunc
	loopDone  chan struct{}
	startedAt time.Time
	frozen    time.Duration // elapsed time while Idle
	rec       *recording
	artifact  *recorder.Artifact
}

// New creates an idle session.
func New(cfg Config, opts Options) (*Session, error) {
	if opts.Device == nil {
		return nil, errors.New("session: capture device is required")
	}
	if opts.Faces == nil {
		return nil, errors.New("session: face model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:     cfg,
		opts:    opts,
		clock:   timeutil.OrReal(opts.Clock),
		logger:  logger.With("component", "session"),
		metrics: opts.Metrics,
		ledger:  ledger.New(),
		id:      uuid.NewString(),
	}
	s.engine = monitor.NewEngine(monitor.EngineConfig{
		Analyzer:   gaze.NewAnalyzer(cfg.Landmarks, cfg.Thresholds),
		Classifier: alerts.NewClassifier(cfg.Matchers),
		Ledger:     s.ledger,
		Conditions: cfg.Conditions,
		Elapsed:    s.elapsedAt,
		Metrics:    opts.Metrics,
		Logger:     logger,
	})
	s.metrics.SetState(int(Idle))
	return s, nil
}

// ID identifies the current session. Reset starts a new id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ledger returns the session's event ledger. Callers must treat it as
// read-only.
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

// Subscribe registers fn for every ledger event.
func (s *Session) Subscribe(fn func(ledger.Event)) { s.ledger.Subscribe(fn) }

// Elapsed returns the session clock. It runs while streaming and is
// frozen while idle.
func (s *Session) Elapsed() time.Duration {
	return s.elapsedAt(s.clock.Now())
}

func (s *Session) elapsedAt(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(now)
}

func (s *Session) elapsedLocked(now time.Time) time.Duration {
	if s.state == Idle {
		return s.frozen
	}
	if d := now.Sub(s.startedAt); d > 0 {
		return d
	}
	return 0
}

// StartStream acquires the capture device and starts the detection loop.
// A start while another is in progress, or while already streaming, is a
// no-op. An acquisition failure is recorded as a ledger event and leaves
// the session Idle.
func (s *Session) StartStream(ctx context.Context) error {
	s.mu.Lock()
	if s.starting || s.state != Idle {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	stream, err := s.opts.Device.Acquire(ctx, s.cfg.Constraints)
	if err != nil {
		s.logger.Error("camera acquisition failed", "error", err)
		s.appendInfo(ledger.KindFailure, LabelCameraError, err.Error())
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	loop := monitor.NewLoop(monitor.LoopConfig{
		Engine:              s.engine,
		Faces:               s.opts.Faces,
		Objects:             s.opts.Objects,
		ObjectInterval:      s.cfg.ObjectInterval,
		MinObjectConfidence: s.cfg.MinObjectConfidence,
		Clock:               s.clock,
		Metrics:             s.metrics,
		Logger:              s.logger,
		OnCycle:             s.opts.OnCycle,
	})

	s.mu.Lock()
	s.stream = stream
	s.cancel = cancel
	s.loopDone = done
	s.startedAt = s.clock.Now()
	s.frozen = 0
	s.state = Streaming
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := loop.Run(loopCtx, stream); err != nil {
			s.logger.Warn("detection loop exited", "error", err)
		}
	}()

	s.metrics.SetState(int(Streaming))
	s.logger.Info("stream started", "stream", stream.ID(), "width", s.cfg.Constraints.Width, "height", s.cfg.Constraints.Height)
	s.appendInfo(ledger.KindInfo, LabelCameraStarted, fmt.Sprintf("%dx%d @ %d fps",
		s.cfg.Constraints.Width, s.cfg.Constraints.Height, s.cfg.Constraints.Framerate))
	return nil
}

// StopStream finishes any recording, stops the detection loop, releases
// the device and clears transient condition timers. Stopping an idle
// session is a no-op. History is kept.
func (s *Session) StopStream(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	recording := s.state == StreamingAndRecording
	stream, cancel, done := s.stream, s.cancel, s.loopDone
	s.mu.Unlock()

	if recording {
		s.finishRecording(ctx)
	}

	// An in-flight cycle is allowed to finish; its results are discarded.
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("detection loop still running after stop", "error", ctx.Err())
	}

	if err := s.opts.Device.Release(stream); err != nil {
		s.logger.Warn("release capture device failed", "error", err)
	}
	s.engine.Clear()

	now := s.clock.Now()
	s.mu.Lock()
	s.frozen = s.elapsedLocked(now)
	s.state = Idle
	s.stream = nil
	s.cancel = nil
	s.loopDone = nil
	elapsed := s.frozen
	s.mu.Unlock()

	s.metrics.SetState(int(Idle))
	s.logger.Info("stream stopped", "stream", stream.ID(), "elapsed", elapsed)
	s.appendInfo(ledger.KindInfo, LabelCameraStopped, "Session duration "+ledger.FormatElapsed(elapsed))
	return nil
}

// StartRecording attaches a recorder to the active stream.
func (s *Session) StartRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.opts.Recorders == nil {
		return errors.New("session: recording is not configured")
	}

	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return ErrNotStreaming
	case StreamingAndRecording:
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	stream := s.stream
	s.mu.Unlock()

	rec := s.opts.Recorders()
	buf := recorder.NewBuffer(rec.MIMEType())
	onData := func(c recorder.Chunk) {
		if buf.Add(c) {
			s.metrics.SetRecordingBytes(buf.Size())
		}
	}
	if err := rec.Start(stream, onData); err != nil {
		return fmt.Errorf("session: start recording: %w", err)
	}

	s.mu.Lock()
	s.rec = &recording{rec: rec, buf: buf, startedAt: s.clock.Now()}
	s.state = StreamingAndRecording
	s.mu.Unlock()

	s.metrics.SetState(int(StreamingAndRecording))
	s.metrics.SetRecordingBytes(0)
	s.logger.Info("recording started", "mime", rec.MIMEType())
	s.appendInfo(ledger.KindInfo, LabelRecordingStarted, "")
	return nil
}

// StopRecording flushes and stops the recorder, waiting at most the
// configured stop timeout for its confirmation, and returns the artifact
// assembled from every chunk delivered by then. When nothing is recording
// it is a no-op returning the current artifact, which may be nil.
func (s *Session) StopRecording(ctx context.Context) (*recorder.Artifact, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.finishRecording(ctx), nil
}

// finishRecording runs the stop protocol. The caller holds opMu.
func (s *Session) finishRecording(ctx context.Context) *recorder.Artifact {
	s.mu.Lock()
	r := s.rec
	if r == nil {
		art := s.artifact
		s.mu.Unlock()
		return art
	}
	s.mu.Unlock()

	r.rec.RequestFlush()
	confirmed := r.rec.Stop()

	timedOut := false
	select {
	case <-confirmed:
	default:
		timedOut = s.awaitStop(ctx, confirmed)
	}

	art := r.buf.Seal(s.clock.Now())

	s.mu.Lock()
	prev := s.artifact
	s.artifact = art
	s.rec = nil
	if s.state == StreamingAndRecording {
		s.state = Streaming
	}
	s.mu.Unlock()

	if prev != nil && prev != art {
		prev.Revoke()
	}

	s.metrics.SetState(int(Streaming))
	details := fmt.Sprintf("%d bytes in %d chunks", art.Size, art.Chunks)
	if timedOut {
		details += " (stop not confirmed)"
	}
	s.logger.Info("recording saved", "id", art.ID, "bytes", art.Size, "chunks", art.Chunks, "timed_out", timedOut)
	s.appendInfo(ledger.KindInfo, LabelRecordingSaved, details)
	return art
}

// awaitStop waits for confirmed, the stop timeout or ctx, and reports
// whether the stop went unconfirmed.
func (s *Session) awaitStop(ctx context.Context, confirmed <-chan struct{}) bool {
	select {
	case <-confirmed:
		return false
	case <-s.clock.After(s.cfg.StopTimeout):
		s.metrics.StopTimeout()
		s.logger.Warn("recorder did not confirm stop, sealing what was flushed", "timeout", s.cfg.StopTimeout)
	case <-ctx.Done():
		select {
		case <-confirmed:
			return false
		default:
		}
		s.logger.Warn("stop recording cancelled, sealing what was flushed", "error", ctx.Err())
	}
	return true
}

// Reset clears the ledger and condition timers, revokes the recording
// artifact and restarts the session clock. It does not start or stop the
// stream. When an archive is configured, a non-empty session is archived
// first.
func (s *Session) Reset(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.opts.Archive != nil && s.ledger.Len() > 0 {
		if id, err := s.opts.Archive.Save(ctx, s.Report()); err != nil {
			s.logger.Warn("archive report failed", "error", err)
		} else {
			s.logger.Info("report archived", "archive_id", id)
		}
	}

	s.engine.Reset()

	s.mu.Lock()
	art := s.artifact
	s.artifact = nil
	s.id = uuid.NewString()
	s.frozen = 0
	if s.state != Idle {
		s.startedAt = s.clock.Now()
	}
	id := s.id
	s.mu.Unlock()

	if art != nil {
		art.Revoke()
	}
	s.logger.Info("session reset", "session", id)
	return nil
}

// Close stops the stream.
func (s *Session) Close(ctx context.Context) error {
	return s.StopStream(ctx)
}

// Artifact returns the most recent recording.
func (s *Session) Artifact() (*recorder.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return nil, recorder.ErrNoArtifact
	}
	return s.artifact, nil
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID      string            `json:"session_id"`
	Candidate      string            `json:"candidate"`
	State          State             `json:"state"`
	Elapsed        string            `json:"elapsed"`
	ElapsedMS      int64             `json:"elapsed_ms"`
	Counters       ledger.Counters   `json:"counters"`
	Score          int               `json:"score"`
	Events         int               `json:"events"`
	RecordingBytes int               `json:"recording_bytes"`
	Recording      *report.Recording `json:"recording,omitempty"`
	Analysis       gaze.Result       `json:"analysis"`
}

// Status returns the current status.
func (s *Session) Status() Status {
	now := s.clock.Now()
	snap := s.ledger.Snapshot()
	analysis := s.engine.LastResult()

	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := s.elapsedLocked(now)
	st := Status{
		SessionID: s.id,
		Candidate: s.candidate(),
		State:     s.state,
		Elapsed:   ledger.FormatElapsed(elapsed),
		ElapsedMS: elapsed.Milliseconds(),
		Counters:  snap.Counters,
		Score:     snap.Score,
		Events:    len(snap.Events),
		Recording: recordingInfo(s.artifact),
		Analysis:  analysis,
	}
	if s.rec != nil {
		st.RecordingBytes = s.rec.buf.Size()
	}
	return st
}

// Report builds the session report.
func (s *Session) Report() report.Report {
	now := s.clock.Now()
	snap := s.ledger.Snapshot()

	s.mu.Lock()
	id, candidate := s.id, s.candidate()
	elapsed := s.elapsedLocked(now)
	rec := recordingInfo(s.artifact)
	s.mu.Unlock()

	return report.Build(candidate, id, elapsed, snap, rec, now)
}

func (s *Session) candidate() string {
	if s.cfg.Candidate == "" {
		return report.DefaultCandidate
	}
	return s.cfg.Candidate
}

func recordingInfo(a *recorder.Artifact) *report.Recording {
	if a == nil || a.Revoked() {
		return nil
	}
	return &report.Recording{ID: a.ID, MIMEType: a.MIMEType, Size: a.Size, CreatedAt: a.CreatedAt}
}

func (s *Session) appendInfo(kind ledger.Kind, label, details string) {
	now := s.clock.Now()
	s.ledger.Append(ledger.NewEvent(kind, label, details, s.elapsedAt(now), now))
	s.metrics.Event(label, string(kind))
}
