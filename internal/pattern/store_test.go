package pattern

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telekinesis/internal/actuation"
	logx "telekinesis/pkg/logx"
)

func writeFunscript(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644))
}

func TestDirStoreLoadAndNames(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFunscript(t, dir, "pulse.vibrator.funscript", `{"actions":[{"at":0,"pos":0},{"at":500,"pos":100}]}`)
	writeFunscript(t, dir, "slide.funscript", `{"actions":[{"at":0,"pos":10},{"at":250,"pos":150}]}`)
	writeFunscript(t, dir, "notes.txt", `ignored`)

	s := NewDirStore(dir)
	ctx := context.Background()

	pts, err := s.Load(ctx, "pulse")
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 500*time.Millisecond, pts[1].At)
	assert.Equal(t, 100, pts[1].Intensity.Value())

	pts, err = s.Load(ctx, "slide")
	require.NoError(t, err)
	assert.Equal(t, 100, pts[1].Intensity.Value(), "positions are clamped")

	_, err = s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Load(ctx, "../etc/passwd")
	assert.True(t, errors.Is(err, ErrNotFound))

	vib, err := s.Names(ctx, KindVibrator)
	require.NoError(t, err)
	assert.Equal(t, []string{"pulse"}, vib)
	str, err := s.Names(ctx, KindStroker)
	require.NoError(t, err)
	assert.Equal(t, []string{"slide"}, str)
}

func TestDirStoreLoadKind(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFunscript(t, dir, "wave.vibrator.funscript", `{"actions":[{"at":0,"pos":20}]}`)
	writeFunscript(t, dir, "wave.funscript", `{"actions":[{"at":0,"pos":80}]}`)
	writeFunscript(t, dir, "only.funscript", `{"actions":[{"at":0,"pos":5}]}`)

	s := NewDirStore(dir)
	ctx := context.Background()

	pts, err := s.LoadKind(ctx, "wave", KindVibrator)
	require.NoError(t, err)
	assert.Equal(t, 20, pts[0].Intensity.Value())

	pts, err = s.LoadKind(ctx, "wave", KindStroker)
	require.NoError(t, err)
	assert.Equal(t, 80, pts[0].Intensity.Value())

	_, err = s.LoadKind(ctx, "only", KindVibrator)
	require.ErrorIs(t, err, ErrNotFound)

	pts, err = s.Load(ctx, "only")
	require.NoError(t, err)
	assert.Equal(t, 5, pts[0].Intensity.Value())
}

func TestDirStoreMissingDir(t *testing.T) {
	t.Parallel()
	names, err := NewDirStore(filepath.Join(t.TempDir(), "nope")).Names(context.Background(), KindVibrator)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFunscriptRoundTripKeepsPoints(t *testing.T) {
	t.Parallel()
	in := []Point{pt(0, 1), pt(40, 99)}
	var buf bytes.Buffer
	require.NoError(t, EncodeFunscript(&buf, in))
	out, err := ParseFunscript(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

type mapStore struct {
	pts   map[string][]Point
	loads atomic.Int32
}

func (m *mapStore) Load(_ context.Context, name string) ([]Point, error) {
	m.loads.Add(1)
	p, ok := m.pts[name]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mapStore) Names(context.Context, Kind) ([]string, error) {
	var out []string
	for k := range m.pts {
		out = append(out, k)
	}
	return out, nil
}

func TestChainFallsThrough(t *testing.T) {
	t.Parallel()
	a := &mapStore{pts: map[string][]Point{"a": {pt(0, 1)}}}
	b := &mapStore{pts: map[string][]Point{"b": {pt(0, 2)}, "a": {pt(0, 9)}}}
	c := Chain{a, nil, b}

	pts, err := c.Load(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, pts[0].Intensity.Value())

	pts, err = c.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, pts[0].Intensity.Value())

	_, err = c.Load(context.Background(), "z")
	assert.True(t, errors.Is(err, ErrNotFound))

	names, err := c.Names(context.Background(), KindVibrator)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestLibraryCachesSanitizedPatterns(t *testing.T) {
	t.Parallel()
	st := &mapStore{pts: map[string][]Point{
		"ok":    {pt(100, 50), pt(0, 0)},
		"empty": {},
	}}
	lib := NewLibrary(st, logx.Nop())

	p1, err := lib.Get(context.Background(), "ok")
	require.NoError(t, err)
	p2, err := lib.Get(context.Background(), "ok")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, int32(1), st.loads.Load())
	assert.Equal(t, actuation.NewSpeed(25), p1.Sample(50*time.Millisecond))

	_, err = lib.Get(context.Background(), "empty")
	assert.True(t, errors.Is(err, ErrEmpty))

	lib.Invalidate()
	_, err = lib.Get(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, int32(3), st.loads.Load())
}
