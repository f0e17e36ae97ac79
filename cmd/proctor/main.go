// Proctor - real-time exam proctoring server
//
// Watches a candidate's camera for absent faces, extra faces, gaze
// aversion and forbidden objects, keeps a scored event ledger, records
// the session and serves it all over HTTP and a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/api"
	"github.com/teslashibe/go-proctor/pkg/archive"
	"github.com/teslashibe/go-proctor/pkg/capture/webcam"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/detection/opencv"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/metrics"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/session"
)

type flags struct {
	envFile   string
	addr      string
	candidate string
	archive   string
	logLevel  string
	fake      bool
	noObjects bool
	autostart bool
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		slog.Error("proctor failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.envFile, "env", ".env", "Environment file (ignored if missing)")
	flag.StringVar(&f.addr, "addr", "", "Listen address (overrides PROCTOR_ADDR)")
	flag.StringVar(&f.candidate, "candidate", "", "Candidate name shown in reports")
	flag.StringVar(&f.archive, "archive", "", "SQLite report archive path (overrides PROCTOR_ARCHIVE)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&f.fake, "fake", false, "Use a synthetic camera and face model instead of gocv")
	flag.BoolVar(&f.noObjects, "no-objects", false, "Disable object detection")
	flag.BoolVar(&f.autostart, "autostart", false, "Start the camera on launch")
	flag.Parse()
	return f
}

func run(f flags) error {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return err
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.candidate != "" {
		cfg.Candidate = f.candidate
	}
	if f.archive != "" {
		cfg.ArchivePath = f.archive
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	scfg := cfg.Session()
	// Both backends emit the YuNet landmark layout.
	scfg.Landmarks = gaze.YuNetLandmarks()

	opts := session.Options{
		Logger:  logger,
		Metrics: m,
		Recorders: recorder.MJPEGFactory(recorder.MJPEGConfig{
			Timeslice: cfg.RecorderTimeslice,
			Logger:    logger,
		}),
	}

	if f.fake {
		dev, err := newFakeDevice(cfg.Camera)
		if err != nil {
			return err
		}
		go dev.drive(ctx, cfg.Camera.Framerate)
		opts.Device = dev.MockDevice
		opts.Faces = detection.NewMockFaceModel(syntheticFace(cfg.Camera))
		logger.Warn("running with synthetic camera and face model")
	} else {
		faces, err := opencv.NewFaceModel(opencv.FaceConfig{
			ModelPath:   cfg.FaceModel,
			ScoreThresh: cfg.FaceScore,
		})
		if err != nil {
			return fmt.Errorf("load face model: %w", err)
		}
		defer faces.Close()
		opts.Faces = faces
		opts.Device = webcam.New(logger)

		if !f.noObjects {
			objects, err := opencv.NewObjectModel(opencv.ObjectConfig{ModelPath: cfg.ObjectModel})
			switch {
			case errors.Is(err, detection.ErrModelNotFound):
				logger.Warn("object model not found, object alerts disabled", "path", cfg.ObjectModel)
			case err != nil:
				return fmt.Errorf("load object model: %w", err)
			default:
				defer objects.Close()
				opts.Objects = objects
			}
		}
	}

	var store *archive.Store
	if cfg.ArchivePath != "" {
		store, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Archive = store
	}

	sess, err := session.New(scfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	srvCfg := api.Config{
		Addr:         cfg.Addr,
		Session:      sess,
		Metrics:      m,
		Logger:       logger,
		AllowOrigins: cfg.AllowOrigins,
	}
	if store != nil {
		srvCfg.Archive = store
	}
	srv := api.NewServer(srvCfg)

	if f.autostart {
		if err := sess.StartStream(ctx); err != nil {
			logger.Error("autostart failed", "error", err)
		}
	}

	logger.Info("proctor ready", "addr", cfg.Addr, "session", sess.ID(), "fake", f.fake)
	return srv.Run(ctx)
}
