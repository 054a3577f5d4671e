package pattern

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telekinesis/internal/actuation"
)

func pt(ms int64, v int64) Point {
	return Point{At: time.Duration(ms) * time.Millisecond, Intensity: actuation.NewSpeed(v)}
}

func TestNewRejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := New("empty", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestNewSanitizesOrderAndDuplicates(t *testing.T) {
	t.Parallel()
	p, err := New("messy", []Point{pt(200, 20), pt(0, 5), pt(100, 10), pt(100, 99), pt(-50, 1)})
	require.NoError(t, err)

	got := p.Points()
	require.Len(t, got, 3)
	assert.Equal(t, time.Duration(0), got[0].At)
	// Stable sort keeps 5 before the clamped -50 point; first one wins.
	assert.Equal(t, 5, got[0].Intensity.Value())
	assert.Equal(t, 10, got[1].Intensity.Value())
	assert.Equal(t, 20, got[2].Intensity.Value())
	assert.Equal(t, 200*time.Millisecond, p.Period())
}

func TestSampleInterpolates(t *testing.T) {
	t.Parallel()
	p, err := New("ramp", []Point{pt(0, 0), pt(100, 100), pt(200, 50)})
	require.NoError(t, err)

	tests := []struct {
		at   int64
		want int
	}{
		{at: 0, want: 0},
		{at: 25, want: 25},
		{at: 50, want: 50},
		{at: 100, want: 100},
		{at: 150, want: 75},
		{at: 199, want: 51},
		{at: 200, want: 0}, // wraps to loop start
		{at: 225, want: 25},
	}
	for _, tt := range tests {
		got := p.Sample(time.Duration(tt.at) * time.Millisecond)
		assert.Equal(t, tt.want, got.Value(), "Sample(%dms)", tt.at)
	}
}

func TestSampleSinglePointIsConstant(t *testing.T) {
	t.Parallel()
	p, err := New("one", []Point{pt(500, 42)})
	require.NoError(t, err)
	for _, ms := range []int64{0, 499, 500, 10_000} {
		assert.Equal(t, 42, p.Sample(time.Duration(ms)*time.Millisecond).Value())
	}
	assert.Equal(t, 70, Constant(actuation.NewSpeed(70)).Sample(time.Hour).Value())
}

func TestSampleHoldsBeforeFirstPoint(t *testing.T) {
	t.Parallel()
	p, err := New("late", []Point{pt(100, 30), pt(300, 90)})
	require.NoError(t, err)
	assert.Equal(t, 30, p.Sample(50*time.Millisecond).Value())
	assert.Equal(t, 60, p.Sample(200*time.Millisecond).Value())
}

func TestSampleLoopInvariance(t *testing.T) {
	t.Parallel()
	p, err := New("wave", []Point{pt(0, 10), pt(70, 90), pt(130, 0), pt(333, 55), pt(400, 100), pt(917, 20)})
	require.NoError(t, err)
	period := p.Period()

	for ms := int64(0); ms < 2000; ms += 7 {
		at := time.Duration(ms) * time.Millisecond
		want := p.Sample(at)
		for k := int64(1); k <= 5; k++ {
			got := p.Sample(at + time.Duration(k)*period)
			require.Equal(t, want.Value(), got.Value(), "t=%v k=%d", at, k)
		}
	}
}

func TestSampleStaysInRange(t *testing.T) {
	t.Parallel()
	p, err := New("extremes", []Point{pt(0, 0), pt(1, 100), pt(3, 0), pt(5, 100)})
	require.NoError(t, err)
	for us := int64(0); us < 20_000; us += 13 {
		v := p.Sample(time.Duration(us) * time.Microsecond).Value()
		require.GreaterOrEqual(t, v, 0)
		require.LessOrEqual(t, v, 100)
	}
}
