package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-proctor/pkg/ledger"
)

func TestBuild(t *testing.T) {
	l := ledger.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.Append(ledger.NewEvent(ledger.KindInfo, "Camera started", "", 0, now))
	require.NoError(t, l.Record(ledger.FocusLost, ledger.NewEvent(ledger.KindAlert, "Looking away", "", 5*time.Second, now)))
	require.NoError(t, l.Record(ledger.FocusLost, ledger.NewEvent(ledger.KindAlert, "Looking away", "", 20*time.Second, now)))
	require.NoError(t, l.Record(ledger.NoFace, ledger.NewEvent(ledger.KindAlert, "No face", "", 30*time.Second, now)))
	require.NoError(t, l.Record(ledger.PhoneDetected, ledger.NewEvent(ledger.KindAlert, "Phone detected", "", 31*time.Second, now)))

	rec := &Recording{ID: "r1", MIMEType: "video/x-motion-jpeg", Size: 42, CreatedAt: now}
	r := Build("", "s1", 95*time.Second, l.Snapshot(), rec, now)

	assert.Equal(t, DefaultCandidate, r.Candidate)
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, "00:01:35", r.Duration)
	assert.EqualValues(t, 95000, r.DurationMS)
	assert.Equal(t, 2, r.FocusLost)
	assert.Equal(t, 2, r.Suspicious)
	assert.Equal(t, 5, r.EventCount)
	assert.Equal(t, 70, r.Score)
	assert.Equal(t, map[string]int{"focusLost": -10, "noFace": -10, "phoneDetected": -10}, r.Breakdown)
	assert.Equal(t, "Camera started", r.Events[0].Label)
	assert.Len(t, r.Alerts(), 4)
	assert.Same(t, rec, r.Recording)
}

func TestBuild_Empty(t *testing.T) {
	r := Build("Ada", "s2", -time.Second, ledger.New().Snapshot(), nil, time.Now())
	assert.Equal(t, "Ada", r.Candidate)
	assert.Equal(t, "00:00:00", r.Duration)
	assert.Equal(t, 100, r.Score)
	assert.NotNil(t, r.Events)
	assert.Empty(t, r.Events)
	assert.Nil(t, r.Recording)
	assert.Empty(t, r.Breakdown)
}
