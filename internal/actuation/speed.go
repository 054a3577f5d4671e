// Package actuation holds the value types shared by every actuation component:
// the saturating Speed percentage and the Infinite/Timed Duration.
package actuation

import (
	"strconv"
	"time"
)

// Speed is a normalized actuation intensity in percent.
// The zero value is a valid stop intensity.
type Speed struct {
	value uint8
}

// NewSpeed clamps percentage into [0,100].
func NewSpeed(percentage int64) Speed {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return Speed{value: uint8(percentage)}
}

func MinSpeed() Speed { return Speed{value: 0} }
func MaxSpeed() Speed { return Speed{value: 100} }

func (s Speed) Value() int { return int(s.value) }

// Fraction scales the speed into [0,1] for hardware command ranges.
func (s Speed) Fraction() float64 { return float64(s.value) / 100.0 }

func (s Speed) IsZero() bool { return s.value == 0 }

func (s Speed) String() string { return strconv.Itoa(int(s.value)) }

// Duration is either Infinite (runs until stopped) or Timed.
type Duration struct {
	d time.Duration
}

// Infinite returns a Duration that never elapses.
func Infinite() Duration { return Duration{} }

// Timed returns a bounded Duration. Non-positive values mean Infinite.
func Timed(d time.Duration) Duration {
	if d <= 0 {
		return Infinite()
	}
	return Duration{d: d}
}

// DurationFromSecs converts a caller-provided seconds value; <= 0 means Infinite.
func DurationFromSecs(secs float64) Duration {
	if secs <= 0 {
		return Infinite()
	}
	return Timed(time.Duration(secs * float64(time.Second)))
}

func (d Duration) IsInfinite() bool { return d.d <= 0 }

// Limit returns the bounded length and whether the duration is Timed.
func (d Duration) Limit() (time.Duration, bool) {
	if d.IsInfinite() {
		return 0, false
	}
	return d.d, true
}

// Elapsed reports whether a task that has run for elapsed is done.
func (d Duration) Elapsed(elapsed time.Duration) bool {
	return !d.IsInfinite() && elapsed >= d.d
}

func (d Duration) String() string {
	if d.IsInfinite() {
		return "infinite"
	}
	return d.d.String()
}
