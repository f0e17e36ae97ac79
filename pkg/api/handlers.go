package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/archive"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, capture.ErrAcquisition):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrNotStreaming),
		errors.Is(err, session.ErrAlreadyRecording):
		return fiber.StatusConflict
	case errors.Is(err, recorder.ErrNoArtifact), errors.Is(err, archive.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, recorder.ErrRevoked):
		return fiber.StatusGone
	}
	return fiber.StatusInternalServerError
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleStartStream(c *fiber.Ctx) error {
	if err := s.session.StartStream(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.session.Status())
}

func (s *Server) handleStopStream(c *fiber.Ctx) error {
	if err := s.session.StopStream(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.session.Status())
}

func (s *Server) handleStartRecording(c *fiber.Ctx) error {
	if err := s.session.StartRecording(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.session.Status())
}

// handleStopRecording returns the saved artifact, or null when nothing
// was ever recorded. Stopping twice is not an error.
func (s *Server) handleStopRecording(c *fiber.Ctx) error {
	art, err := s.session.StopRecording(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(art)
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.session.Reset(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.session.Status())
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.Status())
}

// handleEvents returns the ledger, newest first unless order=oldest.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	l := s.session.Ledger()
	var events []ledger.Event
	switch order := c.Query("order", "newest"); order {
	case "newest":
		events = l.NewestFirst()
	case "oldest":
		events = l.Events()
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown order %q", order))
	}
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	if events == nil {
		events = []ledger.Event{}
	}
	return c.JSON(events)
}

func (s *Server) handleCounters(c *fiber.Ctx) error {
	snap := s.session.Ledger().Snapshot()
	return c.JSON(fiber.Map{
		"counters": snap.Counters,
		"score":    snap.Score,
	})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	return c.JSON(s.session.Report())
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	art, err := s.session.Artifact()
	if err != nil {
		return err
	}
	data, err := art.Bytes()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, art.MIMEType)
	c.Attachment(art.Filename())
	return c.Send(data)
}

func (s *Server) handleArchiveList(c *fiber.Ctx) error {
	if s.archive == nil {
		return fiber.NewError(fiber.StatusNotFound, "archive disabled")
	}
	list, err := s.archive.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) handleArchiveGet(c *fiber.Ctx) error {
	if s.archive == nil {
		return fiber.NewError(fiber.StatusNotFound, "archive disabled")
	}
	r, err := s.archive.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

// handleEventsWS sends the ledger backlog oldest first, then live events.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn)
	client.Run(func() []hub.Message {
		l := s.session.Ledger()
		snap := l.Snapshot()
		out := make([]hub.Message, 0, len(snap.Events))
		for _, e := range snap.Events {
			msg, err := hub.Encode("event", e.ID, EventFrame{Event: e, Counters: snap.Counters, Score: snap.Score})
			if err != nil {
				s.logger.Warn("encode backlog event failed", "error", err)
				continue
			}
			out = append(out, msg)
		}
		return out
	})
}
