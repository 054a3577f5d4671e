// Package pattern samples looped, piecewise-linear intensity curves.
//
// A Pattern is an immutable, sorted, de-duplicated sequence of control points.
// Looping is implicit: Sample reduces the query time modulo the period, so a
// pattern can be queried forever without materializing repeats.
package pattern

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"telekinesis/internal/actuation"
)

var (
	// ErrEmpty is returned when a pattern has no control points.
	ErrEmpty = errors.New("pattern: no control points")
	// ErrNotFound is returned by stores that don't know a pattern name.
	ErrNotFound = errors.New("pattern: not found")
)

// Point is one control point: intensity at an offset from the loop start.
type Point struct {
	At        time.Duration
	Intensity actuation.Speed
}

type Pattern struct {
	name   string
	points []Point
}

// New sanitizes points into a Pattern.
//
// Points are stable-sorted by timestamp; for duplicate timestamps the first
// occurrence wins. Negative timestamps are clamped to 0.
func New(name string, points []Point) (*Pattern, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmpty, name)
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	for i := range cp {
		if cp[i].At < 0 {
			cp[i].At = 0
		}
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].At < cp[j].At })

	out := cp[:1]
	for _, p := range cp[1:] {
		if p.At == out[len(out)-1].At {
			continue
		}
		out = append(out, p)
	}
	return &Pattern{name: name, points: out}, nil
}

// Constant returns a single-point pattern that always yields s.
func Constant(s actuation.Speed) *Pattern {
	return &Pattern{name: "constant", points: []Point{{At: 0, Intensity: s}}}
}

func (p *Pattern) Name() string { return p.name }

// Period is the last point's timestamp; one loop of the pattern.
func (p *Pattern) Period() time.Duration { return p.points[len(p.points)-1].At }

// Points returns a copy of the sanitized control points.
func (p *Pattern) Points() []Point {
	out := make([]Point, len(p.points))
	copy(out, p.points)
	return out
}

// Sample returns the intensity at offset t from the task start.
func (p *Pattern) Sample(t time.Duration) actuation.Speed {
	period := p.Period()
	if period == 0 || len(p.points) == 1 {
		return p.points[0].Intensity
	}
	if t < 0 {
		t = 0
	}
	tm := t % period

	// First index with At >= tm.
	i := sort.Search(len(p.points), func(i int) bool { return p.points[i].At >= tm })
	if i < len(p.points) && p.points[i].At == tm {
		return p.points[i].Intensity
	}
	if i == 0 {
		// Before the first control point: hold its value.
		return p.points[0].Intensity
	}
	// i == len is unreachable since tm < period == last.At.
	lo, hi := p.points[i-1], p.points[i]
	v0 := float64(lo.Intensity.Value())
	v1 := float64(hi.Intensity.Value())
	frac := float64(tm-lo.At) / float64(hi.At-lo.At)
	return actuation.NewSpeed(int64(math.Round(v0 + (v1-v0)*frac)))
}
