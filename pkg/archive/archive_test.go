package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-proctor/pkg/ledger"
	"github.com/teslashibe/go-proctor/pkg/report"
)

func sampleReport(t *testing.T, session string, at time.Time) report.Report {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.Record(ledger.NoFace, ledger.NewEvent(ledger.KindAlert, "No face", "", 4*time.Second, at)))
	return report.Build("Ada", session, time.Minute, l.Snapshot(), nil, at)
}

func TestStore_SaveGetList(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := s.Save(ctx, sampleReport(t, "s1", base))
	require.NoError(t, err)
	second, err := s.Save(ctx, sampleReport(t, "s2", base.Add(time.Hour)))
	require.NoError(t, err)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Equal(t, "s2", list[0].SessionID)
	assert.Equal(t, 90, list[0].Score)
	assert.Equal(t, "00:01:00", list[0].Duration)
	assert.Equal(t, base.Add(time.Hour), list[0].ArchivedAt)

	got, err := s.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Candidate)
	assert.Equal(t, 1, got.Counters.NoFace)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "00:00:04", got.Events[0].Time)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_GetNotFound(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Save(context.Background(), sampleReport(t, "s1", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
