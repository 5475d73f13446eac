package status

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

func seededJournal(t *testing.T) *journal.SQLite {
	t.Helper()
	ctx := context.Background()
	j, err := journal.OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, j.BeginRun(ctx, "run-old", t0, 2))
	require.NoError(t, j.RecordOutcome(ctx, "run-old", 0, parcel.Outcome{Municipality: "Aarau", FeatureCount: 3, CandidateCount: 1}))
	require.NoError(t, j.RecordOutcome(ctx, "run-old", 1, parcel.Outcome{
		Municipality: "Baden",
		Failure:      &parcel.Failure{Kind: parcel.KindNetwork, Message: "request timed out"},
	}))
	require.NoError(t, j.FinishRun(ctx, "run-old", journal.StateDone, t0.Add(90*time.Second)))

	require.NoError(t, j.BeginRun(ctx, "run-new", t0.Add(time.Hour), 3))
	require.NoError(t, j.RecordOutcome(ctx, "run-new", 0, parcel.Outcome{Municipality: "Aarau", FeatureCount: 3, CandidateCount: 1}))
	return j
}

func TestGet_ByID(t *testing.T) {
	j := seededJournal(t)

	rs, err := Get(context.Background(), j, "run-old")
	require.NoError(t, err)
	assert.Equal(t, "run-old", rs.Run.ID)
	assert.Equal(t, journal.StateDone, rs.Run.State)
	require.Len(t, rs.Outcomes, 2)
	assert.Equal(t, "Aarau", rs.Outcomes[0].Municipality)
	assert.True(t, rs.Outcomes[1].Failed())
	assert.Zero(t, rs.Pending)
}

func TestGet_Latest(t *testing.T) {
	j := seededJournal(t)

	for _, id := range []string{"", Latest} {
		rs, err := Get(context.Background(), j, id)
		require.NoError(t, err)
		assert.Equal(t, "run-new", rs.Run.ID)
		assert.Equal(t, journal.StateRunning, rs.Run.State)
		assert.Equal(t, 2, rs.Pending)
	}
}

func TestGet_Unknown(t *testing.T) {
	j := seededJournal(t)

	_, err := Get(context.Background(), j, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, journal.ErrRunNotFound)
}

func TestGet_EmptyJournal(t *testing.T) {
	j, err := journal.OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	_, err = Get(context.Background(), j, "")
	assert.ErrorIs(t, err, ErrNoRuns)
}

type failingReader struct{ Reader }

func (failingReader) ListRuns(context.Context, int) ([]journal.Run, error) {
	return nil, errors.New("disk gone")
}

func TestList_Error(t *testing.T) {
	_, err := List(context.Background(), failingReader{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: list runs")
}

func TestWriteRunTable(t *testing.T) {
	j := seededJournal(t)
	runs, err := List(context.Background(), j, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteRunTable(&buf, runs))
	out := buf.String()
	assert.Contains(t, out, "run-new")
	assert.Contains(t, out, "1/3 searched")
	assert.Contains(t, out, "2/2 searched")
	assert.Contains(t, out, "1 failed")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("run-new")), bytes.Index(buf.Bytes(), []byte("run-old")))
}

func TestWriteRunTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRunTable(&buf, nil))
	assert.Contains(t, buf.String(), "No runs recorded.")
}

func TestWriteRunStatus(t *testing.T) {
	j := seededJournal(t)

	rs, err := Get(context.Background(), j, "run-old")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteRunStatus(&buf, rs))
	out := buf.String()
	assert.Contains(t, out, "Run: run-old")
	assert.Contains(t, out, "(1m30s)")
	assert.Contains(t, out, "✓ Aarau")
	assert.Contains(t, out, "3 feature(s), 1 candidate(s)")
	assert.Contains(t, out, "✗ Baden")
	assert.Contains(t, out, "NetworkError: request timed out")

	rs, err = Get(context.Background(), j, "run-new")
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WriteRunStatus(&buf, rs))
	assert.Contains(t, buf.String(), "2 municipalities not searched")
	assert.NotContains(t, buf.String(), "Finished:")
}
