package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telekinesis/internal/actuation"
	"telekinesis/internal/pattern"
	logx "telekinesis/pkg/logx"
)

func points(vals ...int64) []pattern.Point {
	out := make([]pattern.Point, 0, len(vals))
	for i, v := range vals {
		out = append(out, pattern.Point{At: time.Duration(i*100) * time.Millisecond, Intensity: actuation.NewSpeed(v)})
	}
	return out
}

// exerciseStore runs the driver-independent contract against st.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, st.AppendRun(ctx, Run{
			Instance:  "test",
			Handle:    uint64(i),
			Action:    "constant(50)",
			Actuators: []string{"a", "b"},
			Started:   time.Now(),
			TookMS:    int64(i * 10),
			Reason:    "completed",
		}))
	}
	runs, err := st.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, uint64(3), runs[0].Handle)
	assert.Equal(t, uint64(5), runs[2].Handle)
	assert.Equal(t, []string{"a", "b"}, runs[2].Actuators)

	require.NoError(t, st.PutPattern(ctx, "wave", pattern.KindVibrator, points(0, 100, 0)))
	require.NoError(t, st.PutPattern(ctx, "wave", pattern.KindStroker, points(50)))
	require.NoError(t, st.PutPattern(ctx, "stroke", pattern.KindStroker, points(0, 100)))
	require.ErrorIs(t, st.PutPattern(ctx, "empty", pattern.KindVibrator, nil), pattern.ErrEmpty)

	pts, err := st.Load(ctx, "wave")
	require.NoError(t, err)
	assert.Equal(t, points(0, 100, 0), pts)

	_, err = st.Load(ctx, "missing")
	require.ErrorIs(t, err, pattern.ErrNotFound)

	names, err := st.Names(ctx, pattern.KindStroker)
	require.NoError(t, err)
	assert.Equal(t, []string{"stroke", "wave"}, names)
	names, err = st.Names(ctx, pattern.KindVibrator)
	require.NoError(t, err)
	assert.Equal(t, []string{"wave"}, names)
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "tkd.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)
}

func TestFileStoreReopenAndCompact(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "tkd")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	for i := 0; i < compactEvery+3; i++ {
		require.NoError(t, st.PutPattern(ctx, "p", pattern.KindVibrator, points(int64(i%100))))
	}
	require.NoError(t, st.PutPattern(ctx, "q", pattern.KindStroker, points(7, 8)))
	require.NoError(t, st.AppendRun(ctx, Run{Handle: 9, Reason: "cancelled"}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	pts, err := st.Load(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, points(int64((compactEvery+2)%100)), pts)
	pts, err = st.Load(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, points(7, 8), pts)

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "cancelled", runs[0].Reason)
}

func TestFileStoreJournalCountSurvivesRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tkd")
	journal := path + ".patterns.journal.jsonl"
	ctx := context.Background()

	// Each session stays under the threshold on its own.
	half := compactEvery/2 + 1
	for session := 0; session < 2; session++ {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		for i := 0; i < half; i++ {
			require.NoError(t, st.PutPattern(ctx, "p", pattern.KindVibrator, points(int64(session*half+i)%100)))
		}
		require.NoError(t, st.Close())
	}

	raw, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Equal(t, 2*half-compactEvery, strings.Count(string(raw), "\n"), "journal compacted across restarts")
	_, err = os.Stat(path + ".patterns.snapshot.json")
	require.NoError(t, err)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	pts, err := st.Load(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, points(int64(2*half-1)%100), pts)
}

func TestFileStoreCompactsOversizedJournalOnOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tkd")
	journal := path + ".patterns.journal.jsonl"

	f, err := os.Create(journal)
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	for i := 0; i < compactEvery; i++ {
		rec := patternRecord{patternKey: patternKey{Name: "p", Kind: pattern.KindVibrator}, Points: toStored(points(int64(i % 100)))}
		require.NoError(t, enc.Encode(rec))
	}
	require.NoError(t, f.Close())

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	fi, err := os.Stat(journal)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())

	pts, err := st.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, points(int64((compactEvery-1)%100)), pts)
}

func TestFileStoreRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}
