package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		counters Counters
		want     int
	}{
		{name: "clean session", counters: Counters{}, want: 100},
		{
			name:     "mixed tallies",
			counters: Counters{FocusLost: 2, NoFace: 1, PhoneDetected: 1},
			want:     70,
		},
		{
			name:     "each penalty",
			counters: Counters{FocusLost: 1, NoFace: 1, MultipleFaces: 1, PhoneDetected: 1, BookDetected: 1, DeviceDetected: 1},
			want:     100 - 5 - 10 - 15 - 30,
		},
		{name: "floors at zero", counters: Counters{MultipleFaces: 20}, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.counters))
		})
	}
}

func TestCounters_Aggregates(t *testing.T) {
	c := Counters{FocusLost: 3, NoFace: 1, MultipleFaces: 2, PhoneDetected: 1, BookDetected: 1, DeviceDetected: 4}
	assert.Equal(t, 6, c.Objects())
	assert.Equal(t, 9, c.Suspicious())
	assert.Equal(t, 12, c.Total())
	assert.Equal(t, 4, c.Get(DeviceDetected))
	assert.Equal(t, 0, c.Get("bogus"))
}

func TestPenaltyMatchesScore(t *testing.T) {
	for _, name := range AllCounters {
		var c Counters
		p, err := c.field(name)
		assert.NoError(t, err)
		*p = 1
		assert.Equal(t, 100-Penalty(name), Score(c), name)
	}
	assert.Equal(t, 0, Penalty("bogus"))
}

func TestFormatElapsed(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "00:00:00",
		1500 * time.Millisecond: "00:00:01",
		61 * time.Second:        "00:01:01",
		3*time.Hour + 4*time.Minute + 5*time.Second: "03:04:05",
		-time.Second: "00:00:00",
	}
	for d, want := range tests {
		assert.Equal(t, want, FormatElapsed(d), "FormatElapsed(%v)", d)
	}
}

func TestLedger_RecordKeepsOrderAndCounters(t *testing.T) {
	l := New()
	now := time.Now()

	require.NoError(t, l.Record(NoFace, NewEvent(KindAlert, "No face", "absent 3s", 3*time.Second, now)))
	l.Append(NewEvent(KindInfo, "Recording started", "", 4*time.Second, now))
	require.NoError(t, l.Record(FocusLost, NewEvent(KindAlert, "Looking away", "", 9*time.Second, now)))
	require.Error(t, l.Record("bogus", NewEvent(KindAlert, "x", "", 0, now)))

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "No face", events[0].Label)
	assert.Equal(t, NoFace, events[0].Counter)
	assert.Equal(t, "00:00:03", events[0].Time)
	assert.Equal(t, "Looking away", events[2].Label)
	assert.NotEqual(t, events[0].ID, events[2].ID)

	newest := l.NewestFirst()
	assert.Equal(t, "Looking away", newest[0].Label)
	assert.Equal(t, "No face", newest[2].Label)

	assert.Equal(t, Counters{NoFace: 1, FocusLost: 1}, l.Counters())
	assert.Equal(t, 85, l.Score())
}

func TestLedger_EventsIsACopy(t *testing.T) {
	l := New()
	l.Append(NewEvent(KindInfo, "a", "", 0, time.Now()))
	events := l.Events()
	events[0].Label = "mutated"
	assert.Equal(t, "a", l.Events()[0].Label)
}

func TestLedger_Reset(t *testing.T) {
	l := New()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Record(PhoneDetected, NewEvent(KindAlert, "Phone detected", "", time.Duration(i)*time.Second, time.Now())))
	}
	require.NoError(t, l.Increment(BookDetected))

	l.Reset()

	snap := l.Snapshot()
	assert.Empty(t, snap.Events)
	assert.Equal(t, Counters{}, snap.Counters)
	assert.Equal(t, 100, snap.Score)
	assert.Zero(t, l.Len())
}

func TestLedger_SubscribeInOrder(t *testing.T) {
	l := New()
	var got []string
	l.Subscribe(func(e Event) { got = append(got, e.Label) })

	l.Append(NewEvent(KindInfo, "first", "", 0, time.Now()))
	require.NoError(t, l.Record(BookDetected, NewEvent(KindAlert, "second", "", 0, time.Now())))

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestLedger_SubscribersSeeLedgerOrder(t *testing.T) {
	l := New()
	var ids []string
	l.Subscribe(func(e Event) { ids = append(ids, e.ID) })

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if w%2 == 0 {
					l.Append(NewEvent(KindInfo, "Camera started", "", 0, time.Now()))
				} else {
					_ = l.Record(FocusLost, NewEvent(KindAlert, "Looking away", "", 0, time.Now()))
				}
			}
		}(w)
	}
	wg.Wait()

	events := l.Events()
	want := make([]string, len(events))
	for i, e := range events {
		want[i] = e.ID
	}
	assert.Equal(t, want, ids)
}

func TestLedger_OnResetOrderedWithEvents(t *testing.T) {
	l := New()
	var got []string
	l.Subscribe(func(e Event) { got = append(got, e.Label) })
	l.OnReset(func() {
		assert.Zero(t, l.Len(), "hooks run after the ledger is cleared")
		got = append(got, "reset")
	})

	l.Append(NewEvent(KindInfo, "before", "", 0, time.Now()))
	l.Reset()
	l.Append(NewEvent(KindInfo, "after", "", 0, time.Now()))

	assert.Equal(t, []string{"before", "reset", "after"}, got)
}

func TestLedger_ConcurrentReaders(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = l.Record(NoFace, NewEvent(KindAlert, "No face", "", 0, time.Now()))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := l.Snapshot()
			// A counter never runs ahead of its events.
			assert.Equal(t, len(snap.Events), snap.Counters.NoFace)
		}
	}()
	wg.Wait()
	assert.Equal(t, 200, l.Counters().NoFace)
}
