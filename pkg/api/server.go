// Package api serves the session's commands and queries over HTTP and
// streams ledger events over a websocket.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/archive"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/metrics"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/session"
)

// Controller is the session surface the API drives.
type Controller interface {
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*recorder.Artifact, error)
	Reset(ctx context.Context) error
	Status() session.Status
	Report() report.Report
	Artifact() (*recorder.Artifact, error)
	Ledger() *ledger.Ledger
	Subscribe(fn func(ledger.Event))
}

// Archive is the read side of the report archive.
type Archive interface {
	List(ctx context.Context, limit int) ([]archive.Summary, error)
	Get(ctx context.Context, id string) (report.Report, error)
}

// Config configures a Server.
type Config struct {
	Addr    string
	Session Controller
	Archive Archive          // nil disables /api/archive
	Metrics *metrics.Metrics // nil disables /metrics
	Logger  *slog.Logger

	// AllowOrigins is passed to the CORS middleware. Empty allows all.
	AllowOrigins string
}

// EventFrame is the payload of an "event" websocket message.
type EventFrame struct {
	Event    ledger.Event    `json:"event"`
	Counters ledger.Counters `json:"counters"`
	Score    int             `json:"score"`
}

// ResetFrame is the payload of a "reset" websocket message. Clients drop
// the events they hold.
type ResetFrame struct {
	Counters ledger.Counters `json:"counters"`
	Score    int             `json:"score"`
}

// Server is the HTTP API.
type Server struct {
	app     *fiber.App
	addr    string
	session Controller
	archive Archive
	events  *hub.Hub
	logger  *slog.Logger
}

// NewServer creates the server and subscribes it to session events.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    cfg.Addr,
		session: cfg.Session,
		archive: cfg.Archive,
		events:  hub.New("events", logger),
		logger:  logger.With("component", "api"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Proctor",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: orDefault(cfg.AllowOrigins, "*")}))

	api := app.Group("/api")
	api.Post("/stream/start", s.handleStartStream)
	api.Post("/stream/stop", s.handleStopStream)
	api.Post("/recording/start", s.handleStartRecording)
	api.Post("/recording/stop", s.handleStopRecording)
	api.Post("/reset", s.handleReset)
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/counters", s.handleCounters)
	api.Get("/report", s.handleReport)
	api.Get("/recording", s.handleDownload)
	api.Get("/archive", s.handleArchiveList)
	api.Get("/archive/:id", s.handleArchiveGet)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	cfg.Session.Subscribe(s.publish)
	cfg.Session.Ledger().OnReset(s.publishReset)
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub { return s.events }

// Run starts the hub and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.events.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (s *Server) publish(e ledger.Event) {
	l := s.session.Ledger()
	frame := EventFrame{Event: e, Counters: l.Counters(), Score: l.Score()}
	if err := s.events.BroadcastEnvelope("event", e.ID, frame); err != nil {
		s.logger.Warn("encode event failed", "error", err)
	}
}

func (s *Server) publishReset() {
	frame := ResetFrame{Score: ledger.Score(ledger.Counters{})}
	if err := s.events.BroadcastEnvelope("reset", "", frame); err != nil {
		s.logger.Warn("encode reset failed", "error", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
