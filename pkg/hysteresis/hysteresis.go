// Package hysteresis turns a noisy per-frame boolean into rate-limited
// discrete events: a condition must hold continuously for Threshold
// before it fires, and after firing it stays silent for Throttle.
package hysteresis

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the timing for one condition.
type Config struct {
	// Threshold is how long the condition must hold before firing.
	Threshold time.Duration `json:"threshold"`

	// Throttle is the refractory period after a firing.
	Throttle time.Duration `json:"throttle"`
}

// Firing describes one emitted event.
type Firing struct {
	// ActiveFor is how long the condition had been continuously true.
	ActiveFor time.Duration
}

// State is a snapshot of a condition's timers. Zero times mean unset.
type State struct {
	ActiveSince     time.Time `json:"active_since"`
	SuppressedUntil time.Time `json:"suppressed_until"`
}

// Condition tracks a single boolean condition. It is not safe for
// concurrent use; the Tracker serializes access.
type Condition struct {
	cfg   Config
	state State
}

// NewCondition creates a condition with cfg.
func NewCondition(cfg Config) *Condition {
	return &Condition{cfg: cfg}
}

// Observe feeds one frame's raw value. It returns ok=true at most once per
// continuous active interval inside a throttle window.
func (c *Condition) Observe(active bool, now time.Time) (Firing, bool) {
	if !active {
		// No credit is carried across a gap.
		c.state.ActiveSince = time.Time{}
		return Firing{}, false
	}

	if c.state.ActiveSince.IsZero() {
		c.state.ActiveSince = now
	}
	activeFor := now.Sub(c.state.ActiveSince)
	if activeFor < c.cfg.Threshold {
		return Firing{}, false
	}
	if !c.state.SuppressedUntil.IsZero() && now.Before(c.state.SuppressedUntil) {
		return Firing{}, false
	}

	c.state.SuppressedUntil = now.Add(c.cfg.Throttle)
	return Firing{ActiveFor: activeFor}, true
}

// Clear drops the active-since timer but keeps the suppression window.
func (c *Condition) Clear() {
	c.state.ActiveSince = time.Time{}
}

// Reset drops both timers.
func (c *Condition) Reset() {
	c.state = State{}
}

// State returns the current timers.
func (c *Condition) State() State {
	return c.state
}

// Config returns the condition's timing.
func (c *Condition) Config() Config {
	return c.cfg
}

// Tracker is an arena of named conditions.
type Tracker struct {
	mu         sync.Mutex
	conditions map[string]*Condition
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conditions: make(map[string]*Condition)}
}

// Add registers a condition. Re-adding a name replaces its config and timers.
func (t *Tracker) Add(name string, cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conditions[name] = NewCondition(cfg)
}

// Observe feeds a raw value to the named condition.
func (t *Tracker) Observe(name string, active bool, now time.Time) (Firing, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conditions[name]
	if !ok {
		return Firing{}, false, fmt.Errorf("hysteresis: unknown condition %q", name)
	}
	f, fired := c.Observe(active, now)
	return f, fired, nil
}

// ClearAll drops every active-since timer, keeping suppression windows.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conditions {
		c.Clear()
	}
}

// ResetAll drops every timer.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conditions {
		c.Reset()
	}
}

// States returns a snapshot of every condition's timers.
func (t *Tracker) States() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.conditions))
	for name, c := range t.conditions {
		out[name] = c.State()
	}
	return out
}

// State returns the named condition's timers.
func (t *Tracker) State(name string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conditions[name]
	if !ok {
		return State{}, false
	}
	return c.State(), true
}
