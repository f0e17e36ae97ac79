// Package report derives the end-of-session summary from a ledger snapshot.
package report

import (
	"time"

	"github.com/teslashibe/go-proctor/pkg/ledger"
)

// DefaultCandidate is used when no candidate name is configured.
const DefaultCandidate = "Anonymous"

// Recording describes the artifact produced for the session, if any.
type Recording struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Report is a read-only summary. Events are oldest-first.
type Report struct {
	SessionID   string          `json:"session_id"`
	Candidate   string          `json:"candidate"`
	GeneratedAt time.Time       `json:"generated_at"`
	Duration    string          `json:"duration"`
	DurationMS  int64           `json:"duration_ms"`
	FocusLost   int             `json:"focus_lost"`
	Suspicious  int             `json:"suspicious"`
	EventCount  int             `json:"event_count"`
	Counters    ledger.Counters `json:"counters"`
	Score       int             `json:"score"`
	Breakdown   map[string]int  `json:"breakdown"`
	Events      []ledger.Event  `json:"events"`
	Recording   *Recording      `json:"recording,omitempty"`
}

// Build assembles a report from snap. rec may be nil.
func Build(candidate, sessionID string, elapsed time.Duration, snap ledger.Snapshot, rec *Recording, now time.Time) Report {
	if candidate == "" {
		candidate = DefaultCandidate
	}
	if elapsed < 0 {
		elapsed = 0
	}

	events := snap.Events
	if events == nil {
		events = []ledger.Event{}
	}
	// Breakdown holds the score deduction of every non-zero counter.
	breakdown := make(map[string]int)
	for _, name := range ledger.AllCounters {
		if n := snap.Counters.Get(name); n > 0 {
			breakdown[string(name)] = -ledger.Penalty(name) * n
		}
	}

	return Report{
		SessionID:   sessionID,
		Candidate:   candidate,
		GeneratedAt: now,
		Duration:    ledger.FormatElapsed(elapsed),
		DurationMS:  elapsed.Milliseconds(),
		FocusLost:   snap.Counters.FocusLost,
		Suspicious:  snap.Counters.Suspicious(),
		EventCount:  len(events),
		Counters:    snap.Counters,
		Score:       ledger.Score(snap.Counters),
		Breakdown:   breakdown,
		Events:      events,
		Recording:   rec,
	}
}

// Alerts returns only the risk events of r, oldest-first.
func (r Report) Alerts() []ledger.Event {
	var out []ledger.Event
	for _, e := range r.Events {
		if e.Kind == ledger.KindAlert {
			out = append(out, e)
		}
	}
	return out
}
