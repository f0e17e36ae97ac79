package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-proctor/pkg/ledger"
)

type envelope struct {
	Type string `json:"type"`
	Data struct {
		Event    ledger.Event    `json:"event"`
		Counters ledger.Counters `json:"counters"`
		Score    int             `json:"score"`
	} `json:"data"`
}

// wsURL maps an http(s) server URL to its events websocket.
func wsURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/events"
	return u.String(), nil
}

// watch prints the backlog and live events until ctx is done or the
// server closes the connection.
func (c *cli) watch(ctx context.Context) error {
	target, err := wsURL(c.server)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	fmt.Fprintf(c.out, "👀 Watching %s (Ctrl+C to stop)\n", target)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case "event":
			c.printLive(env)
		case "reset":
			fmt.Fprintln(c.out, "🔄 Session reset")
		}
	}
}

func (c *cli) printLive(env envelope) {
	e := env.Data.Event
	icon := "ℹ️ "
	switch e.Kind {
	case ledger.KindAlert:
		icon = "⚠️ "
	case ledger.KindFailure:
		icon = "❌"
	}
	line := fmt.Sprintf("%s %s %-22s score=%d", e.Time, icon, e.Label, env.Data.Score)
	if e.Details != "" {
		line += "  " + e.Details
	}
	fmt.Fprintln(c.out, line)
}
