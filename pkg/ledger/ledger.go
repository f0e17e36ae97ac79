// Package ledger holds a session's append-only event log and risk
// counters. Counters and events are updated under one lock, so a reader
// never sees a counter without its event.
package ledger

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind separates risk events from lifecycle notices.
type Kind string

const (
	KindAlert   Kind = "alert"
	KindInfo    Kind = "info"
	KindFailure Kind = "failure"
)

// Event is one ledger entry.
type Event struct {
	ID      string    `json:"id"`
	Time    string    `json:"time"` // elapsed session time, HH:MM:SS
	Label   string    `json:"label"`
	Details string    `json:"details"`
	Kind    Kind      `json:"kind"`
	Counter Counter   `json:"counter,omitempty"`
	At      time.Time `json:"at"`
}

// NewEvent builds an event stamped with elapsed session time.
func NewEvent(kind Kind, label, details string, elapsed time.Duration, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    FormatElapsed(elapsed),
		Label:   label,
		Details: details,
		Kind:    kind,
		At:      at,
	}
}

// FormatElapsed renders d as HH:MM:SS. Negative durations render as zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Snapshot is a consistent read of the ledger.
type Snapshot struct {
	Events   []Event  `json:"events"`
	Counters Counters `json:"counters"`
	Score    int      `json:"score"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	events   []Event
	counters Counters

	// pubMu is held from a mutation until its subscribers return, so
	// subscribers observe mutations in ledger order. Taken before mu.
	pubMu sync.Mutex

	subMu       sync.RWMutex
	subscribers []func(Event)
	onReset     []func()
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Subscribe registers fn to receive every appended event, in ledger
// order, after the ledger lock is released. fn must not mutate the ledger.
func (l *Ledger) Subscribe(fn func(Event)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// OnReset registers fn to run after every Reset, ordered with events.
func (l *Ledger) OnReset(fn func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.onReset = append(l.onReset, fn)
}

// Append adds an event without touching counters.
func (l *Ledger) Append(e Event) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.publish(e)
}

// Increment bumps the named counter.
func (l *Ledger) Increment(name Counter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.counters.field(name)
	if err != nil {
		return err
	}
	*p++
	return nil
}

// Record increments name and appends e atomically.
func (l *Ledger) Record(name Counter, e Event) error {
	e.Counter = name
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	l.mu.Lock()
	p, err := l.counters.field(name)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	*p++
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.publish(e)
	return nil
}

func (l *Ledger) publish(e Event) {
	l.subMu.RLock()
	subs := l.subscribers
	l.subMu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Events returns the events in insertion order (oldest first).
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// NewestFirst returns the events in display order.
func (l *Ledger) NewestFirst() []Event {
	out := l.Events()
	slices.Reverse(out)
	return out
}

// Len returns the number of events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Counters returns the current tallies.
func (l *Ledger) Counters() Counters {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters
}

// Score returns the integrity score of the current tallies.
func (l *Ledger) Score() int {
	return Score(l.Counters())
}

// Snapshot returns events, counters and score read under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Events:   slices.Clone(l.events),
		Counters: l.counters,
		Score:    Score(l.counters),
	}
}

// Reset clears every event and counter, then notifies OnReset hooks.
func (l *Ledger) Reset() {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	l.mu.Lock()
	l.events = nil
	l.counters = Counters{}
	l.mu.Unlock()

	l.subMu.RLock()
	hooks := l.onReset
	l.subMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
