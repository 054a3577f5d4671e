// Package gpio drives on/off actuators wired to GPIO output lines.
//
// Each configured line is exposed as a single-actuator device. Any non-zero
// intensity drives the line active; zero releases it. The real implementation
// uses the Linux GPIO character device.
package gpio

import (
	"fmt"
	"strings"

	"telekinesis/internal/device"
)

// Line maps one GPIO offset to a named device.
type Line struct {
	Name       string
	Offset     int
	Capability device.Capability
	ActiveLow  bool
}

type Config struct {
	Chip  string
	Lines []Line
}

func (c Config) validate() error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("gpio: no lines configured")
	}
	seen := map[string]bool{}
	offsets := map[int]bool{}
	for _, l := range c.Lines {
		n := strings.ToLower(strings.TrimSpace(l.Name))
		if n == "" {
			return fmt.Errorf("gpio: line %d has no name", l.Offset)
		}
		if seen[n] {
			return fmt.Errorf("gpio: duplicate line name %q", l.Name)
		}
		if offsets[l.Offset] {
			return fmt.Errorf("gpio: duplicate offset %d", l.Offset)
		}
		if !l.Capability.Scalar() {
			return fmt.Errorf("gpio: line %q: %s actuators are not supported", l.Name, l.Capability)
		}
		seen[n] = true
		offsets[l.Offset] = true
	}
	return nil
}

func (c Config) devices() []device.Info {
	out := make([]device.Info, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, device.Scalar(l.Name, l.Capability))
	}
	return out
}

// level maps a logical on/off state to the raw line value.
func level(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
