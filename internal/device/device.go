// Package device models actuators and the hardware-client boundary.
//
// The Registry is the queryable set of currently known actuators. It is
// mutated only by the connection Monitor (fed by a Client) and read through
// immutable snapshots, so tasks never block device add/remove.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telekinesis/internal/actuation"
)

// ErrDisconnected is returned by clients when writing to a device that is gone.
var ErrDisconnected = errors.New("device disconnected")

// Capability is an actuator's output modality.
type Capability int

const (
	Vibrate Capability = iota + 1
	Rotate
	Linear
)

func (c Capability) String() string {
	switch c {
	case Vibrate:
		return "Vibrate"
	case Rotate:
		return "Rotate"
	case Linear:
		return "Linear"
	default:
		return "Unknown"
	}
}

// ParseCapability accepts the String() forms case-insensitively.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vibrate", "vibration", "vibrator":
		return Vibrate, nil
	case "rotate", "rotation":
		return Rotate, nil
	case "linear", "stroke", "position":
		return Linear, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", s)
	}
}

// Scalar reports whether the capability accepts intensity (scalar) writes.
// Linear actuators take position commands and are never driven by speed.
func (c Capability) Scalar() bool { return c == Vibrate || c == Rotate }

// Actuator is one controllable output channel.
//
// Device is the owning device's name, a non-owning reference resolved through
// the Registry; an Actuator value stays usable after its device disconnects.
type Actuator struct {
	ID         string
	Device     string
	Capability Capability
	Index      int
}

// Info describes a device as reported by a Client.
type Info struct {
	Name      string
	Actuators []Capability
}

// ActuatorList expands Info into Actuator values with stable identifiers.
//
// A device with a single actuator is addressed by its name. Otherwise each
// actuator is "<name> (<capability>)", numbered when the capability repeats.
func (d Info) ActuatorList() []Actuator {
	total := map[Capability]int{}
	for _, c := range d.Actuators {
		total[c]++
	}
	seen := map[Capability]int{}
	out := make([]Actuator, 0, len(d.Actuators))
	for i, c := range d.Actuators {
		seen[c]++
		id := d.Name
		if len(d.Actuators) > 1 {
			if total[c] > 1 {
				id = fmt.Sprintf("%s (%s #%d)", d.Name, c, seen[c])
			} else {
				id = fmt.Sprintf("%s (%s)", d.Name, c)
			}
		}
		out = append(out, Actuator{ID: id, Device: d.Name, Capability: c, Index: i})
	}
	return out
}

// EventKind classifies a Client feed event.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventRemoved
	EventConnected
	EventDisconnected
)

// ClientEvent is one occurrence on a Client's live feed.
type ClientEvent struct {
	Kind   EventKind
	Device Info
	Detail string
}

// Client is the hardware-client collaborator.
//
// WriteScalar must honor ctx; the scheduler bounds every write with a timeout.
// Events is closed when the client is closed.
type Client interface {
	Devices(ctx context.Context) ([]Info, error)
	WriteScalar(ctx context.Context, a Actuator, s actuation.Speed) error
	Events() <-chan ClientEvent
	Close() error
}
