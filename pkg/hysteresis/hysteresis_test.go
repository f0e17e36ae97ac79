package hysteresis

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

var noFace = Config{Threshold: 3000 * time.Millisecond, Throttle: 10000 * time.Millisecond}

// feed observes active at every step from start to end (inclusive) and
// returns the millisecond offsets at which the condition fired.
func feed(c *Condition, active bool, start, end, step int) []int {
	var fired []int
	for ms := start; ms <= end; ms += step {
		if _, ok := c.Observe(active, at(ms)); ok {
			fired = append(fired, ms)
		}
	}
	return fired
}

func TestCondition_FiresOnceAfterThreshold(t *testing.T) {
	c := NewCondition(noFace)

	fired := feed(c, true, 0, 9000, 100)
	if len(fired) != 1 {
		t.Fatalf("expected exactly one firing, got %v", fired)
	}
	if fired[0] != 3000 {
		t.Errorf("fired at %dms, want 3000ms", fired[0])
	}
}

func TestCondition_ThrottleWindow(t *testing.T) {
	c := NewCondition(noFace)

	// Continuously true for 20s: fires at 3s, then silent until 13s.
	fired := feed(c, true, 0, 20000, 100)
	want := []int{3000, 13000}
	if len(fired) != len(want) {
		t.Fatalf("fired at %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("firing %d at %dms, want %dms", i, fired[i], want[i])
		}
	}

	st := c.State()
	if !st.SuppressedUntil.Equal(at(23000)) {
		t.Errorf("SuppressedUntil = %v, want %v", st.SuppressedUntil, at(23000))
	}
}

func TestCondition_GapResetsAccumulation(t *testing.T) {
	c := NewCondition(noFace)

	if fired := feed(c, true, 0, 2900, 100); len(fired) != 0 {
		t.Fatalf("fired before threshold: %v", fired)
	}
	if _, ok := c.Observe(false, at(3000)); ok {
		t.Fatal("false observation fired")
	}
	if !c.State().ActiveSince.IsZero() {
		t.Fatal("ActiveSince should be cleared by a false observation")
	}

	// Next true observation starts over from zero.
	c.Observe(true, at(3100))
	if got := c.State().ActiveSince; !got.Equal(at(3100)) {
		t.Errorf("ActiveSince = %v, want %v", got, at(3100))
	}
	if fired := feed(c, true, 3200, 6000, 100); len(fired) != 0 {
		t.Errorf("fired before a fresh threshold elapsed: %v", fired)
	}
	if _, ok := c.Observe(true, at(6100)); !ok {
		t.Error("expected firing 3000ms after the fresh start")
	}
}

func TestCondition_FalseKeepsSuppression(t *testing.T) {
	c := NewCondition(noFace)

	feed(c, true, 0, 3000, 100)
	c.Observe(false, at(3500))
	if c.State().SuppressedUntil.IsZero() {
		t.Fatal("a false observation must not clear the suppression window")
	}

	// Re-accumulates by 7s but is still suppressed until 13s.
	fired := feed(c, true, 4000, 12900, 100)
	if len(fired) != 0 {
		t.Errorf("fired inside suppression window: %v", fired)
	}
	if _, ok := c.Observe(true, at(13000)); !ok {
		t.Error("expected firing once suppression elapsed")
	}
}

func TestCondition_ZeroThresholdFiresImmediately(t *testing.T) {
	c := NewCondition(Config{Throttle: 5 * time.Second})

	f, ok := c.Observe(true, at(0))
	if !ok || f.ActiveFor != 0 {
		t.Fatalf("expected immediate firing, got %+v ok=%v", f, ok)
	}
	if _, ok := c.Observe(true, at(100)); ok {
		t.Error("second observation should be throttled")
	}
}

func TestCondition_FiringReportsDuration(t *testing.T) {
	c := NewCondition(Config{Threshold: 2 * time.Second, Throttle: 5 * time.Second})
	c.Observe(true, at(0))
	f, ok := c.Observe(true, at(2500))
	if !ok {
		t.Fatal("expected firing")
	}
	if f.ActiveFor != 2500*time.Millisecond {
		t.Errorf("ActiveFor = %v, want 2.5s", f.ActiveFor)
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	tr.Add("no_face", noFace)
	tr.Add("looking_away", Config{Threshold: 2 * time.Second, Throttle: 5 * time.Second})

	if _, _, err := tr.Observe("bogus", true, at(0)); err == nil {
		t.Error("expected error for unknown condition")
	}

	tr.Observe("no_face", true, at(0))
	tr.Observe("looking_away", true, at(0))
	if _, fired, _ := tr.Observe("looking_away", true, at(2000)); !fired {
		t.Fatal("looking_away should fire at 2s")
	}

	tr.ClearAll()
	st, _ := tr.State("looking_away")
	if !st.ActiveSince.IsZero() || st.SuppressedUntil.IsZero() {
		t.Errorf("ClearAll should drop ActiveSince only, got %+v", st)
	}

	tr.ResetAll()
	for name, st := range tr.States() {
		if st != (State{}) {
			t.Errorf("%s not reset: %+v", name, st)
		}
	}
	if _, ok := tr.State("missing"); ok {
		t.Error("State of unknown condition should report !ok")
	}
}
