// proctorctl drives a running proctor server from the command line.
//
//	proctorctl [-server URL] start|stop|record|stop-record|reset|status|events|report|download|archive|watch
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-proctor/internal/httpc"
	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/report"
)

const usage = `usage: proctorctl [flags] <command> [args]

commands:
  start          start the camera and detection
  stop           stop the camera (finishes any recording)
  record         start recording
  stop-record    stop recording
  reset          clear events and counters, start a new session
  status         show session status
  events [n]     show the newest n events (default 20)
  report         print the session report as JSON
  download [f]   save the latest recording (default: server filename)
  archive [id]   list archived reports, or print one
  watch          stream live events

flags:
`

func main() {
	server := flag.String("server", envOr("PROCTOR_SERVER", "http://localhost:8080"), "Proctor server URL")
	timeout := flag.Duration("timeout", httpc.DefaultTimeout, "Request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli := &cli{api: httpc.New(*server, *timeout), server: *server, out: os.Stdout}
	if err := cli.run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	api    *httpc.Client
	server string
	out    io.Writer
}

// status mirrors the server's status document.
type status struct {
	SessionID      string          `json:"session_id"`
	Candidate      string          `json:"candidate"`
	State          string          `json:"state"`
	Elapsed        string          `json:"elapsed"`
	Counters       ledger.Counters `json:"counters"`
	Score          int             `json:"score"`
	Events         int             `json:"events"`
	RecordingBytes int             `json:"recording_bytes"`
}

func (c *cli) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		return c.command(ctx, "/api/stream/start")
	case "stop":
		return c.command(ctx, "/api/stream/stop")
	case "record":
		return c.command(ctx, "/api/recording/start")
	case "reset":
		return c.command(ctx, "/api/reset")
	case "stop-record":
		var art *report.Recording
		if err := c.api.Do(ctx, http.MethodPost, "/api/recording/stop", &art); err != nil {
			return err
		}
		if art == nil {
			fmt.Fprintln(c.out, "Nothing recorded")
			return nil
		}
		fmt.Fprintf(c.out, "✅ Recording saved: %s (%d bytes, %s)\n", art.ID, art.Size, art.MIMEType)
		return nil
	case "status":
		var st status
		if err := c.api.Do(ctx, http.MethodGet, "/api/status", &st); err != nil {
			return err
		}
		c.printStatus(st)
		return nil
	case "events":
		n := 20
		if len(rest) > 0 {
			v, err := strconv.Atoi(rest[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid event count %q", rest[0])
			}
			n = v
		}
		var events []ledger.Event
		if err := c.api.Do(ctx, http.MethodGet, fmt.Sprintf("/api/events?limit=%d", n), &events); err != nil {
			return err
		}
		c.printEvents(events)
		return nil
	case "report":
		return c.printJSON(ctx, "/api/report")
	case "download":
		return c.download(ctx, rest)
	case "archive":
		if len(rest) > 0 {
			return c.printJSON(ctx, "/api/archive/"+rest[0])
		}
		return c.printJSON(ctx, "/api/archive")
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) command(ctx context.Context, path string) error {
	var st status
	if err := c.api.Do(ctx, http.MethodPost, path, &st); err != nil {
		return err
	}
	c.printStatus(st)
	return nil
}

func (c *cli) printStatus(st status) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Session:\t%s\n", st.SessionID)
	fmt.Fprintf(w, "Candidate:\t%s\n", st.Candidate)
	fmt.Fprintf(w, "State:\t%s\n", st.State)
	fmt.Fprintf(w, "Elapsed:\t%s\n", st.Elapsed)
	fmt.Fprintf(w, "Score:\t%d\n", st.Score)
	fmt.Fprintf(w, "Events:\t%d\n", st.Events)
	cn := st.Counters
	fmt.Fprintf(w, "Counters:\tfocus=%d noFace=%d multi=%d phone=%d book=%d device=%d\n",
		cn.FocusLost, cn.NoFace, cn.MultipleFaces, cn.PhoneDetected, cn.BookDetected, cn.DeviceDetected)
	if st.RecordingBytes > 0 {
		fmt.Fprintf(w, "Recording:\t%d bytes\n", st.RecordingBytes)
	}
	w.Flush()
}

func (c *cli) printEvents(events []ledger.Event) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time, e.Kind, e.Label, e.Details)
	}
	w.Flush()
}

func (c *cli) printJSON(ctx context.Context, path string) error {
	var v json.RawMessage
	if err := c.api.Do(ctx, http.MethodGet, path, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) download(ctx context.Context, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = filepath.Dir(args[0])
	}
	tmp, err := os.CreateTemp(dir, ".proctor-download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, err := c.api.Download(ctx, "/api/recording", tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	switch {
	case len(args) > 0:
		name = args[0]
	case name == "":
		name = fmt.Sprintf("session-%s.mjpeg", time.Now().Format("20060102_150405"))
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✅ Saved %s\n", name)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
