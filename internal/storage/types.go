package storage

import (
	"errors"
	"time"

	"telekinesis/internal/actuation"
	"telekinesis/internal/pattern"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Run is one finished task. Keep it compact and schema-stable.
type Run struct {
	Instance  string    `json:"instance"`
	Handle    uint64    `json:"handle"`
	Action    string    `json:"action"`
	Origin    string    `json:"origin,omitempty"`
	Actuators []string  `json:"actuators"`
	Started   time.Time `json:"started"`
	TookMS    int64     `json:"took_ms"`
	Reason    string    `json:"reason"`
	Failures  int       `json:"write_failures,omitempty"`
}

// storedPoint is the persisted form of a pattern point.
type storedPoint struct {
	AtMS int64 `json:"at"`
	Pos  int   `json:"pos"`
}

func toStored(pts []pattern.Point) []storedPoint {
	out := make([]storedPoint, 0, len(pts))
	for _, p := range pts {
		out = append(out, storedPoint{AtMS: p.At.Milliseconds(), Pos: p.Intensity.Value()})
	}
	return out
}

func fromStored(sp []storedPoint) []pattern.Point {
	out := make([]pattern.Point, 0, len(sp))
	for _, p := range sp {
		out = append(out, pattern.Point{
			At:        time.Duration(p.AtMS) * time.Millisecond,
			Intensity: actuation.NewSpeed(int64(p.Pos)),
		})
	}
	return out
}
