// Package selector resolves a request's target description into a concrete,
// de-duplicated set of actuators.
package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"telekinesis/internal/device"
)

// ErrInvalidSelector is returned for target strings that name nothing.
var ErrInvalidSelector = errors.New("invalid selector")

// Target describes which actuators a request addresses.
// All wins over Names.
type Target struct {
	All   bool
	Names []string
}

func All() Target                    { return Target{All: true} }
func ByNames(names ...string) Target { return Target{Names: names} }
func (t Target) IsZero() bool        { return !t.All && len(t.Names) == 0 }

func (t Target) String() string {
	if t.All {
		return "all"
	}
	return strings.Join(t.Names, ",")
}

// ParseTarget parses "all" / "*" or a comma separated list of names.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "all", "*":
		return All(), nil
	}
	names := SanitizeNames(strings.Split(s, ","))
	if len(names) == 0 {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidSelector, s)
	}
	return ByNames(names...), nil
}

// SanitizeNames lowercases and trims names, dropping empties.
func SanitizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Settings is the per-device configuration collaborator.
type Settings interface {
	Enabled(device string) bool
	EventTags(device string) []string
}

// Source lists the actuators currently known.
type Source interface {
	List() []device.Actuator
}

// Resolver combines the registry and settings.
type Resolver struct {
	src      Source
	settings Settings
}

func NewResolver(src Source, settings Settings) *Resolver {
	return &Resolver{src: src, settings: settings}
}

// Resolve returns every actuator that is
//   - addressed by target (All, or name match on actuator ID / device name),
//   - owned by an enabled device,
//   - of capability want,
//   - on a device whose event tags intersect events (no events = wildcard).
//
// The result is sorted by actuator ID.
func (r *Resolver) Resolve(target Target, want device.Capability, events []string) []device.Actuator {
	if target.IsZero() {
		return nil
	}
	names := map[string]struct{}{}
	for _, n := range SanitizeNames(target.Names) {
		names[n] = struct{}{}
	}
	tags := SanitizeNames(events)

	seen := map[string]struct{}{}
	var out []device.Actuator
	for _, a := range r.src.List() {
		if a.Capability != want {
			continue
		}
		if !target.All && !matchesName(names, a) {
			continue
		}
		if r.settings != nil {
			if !r.settings.Enabled(a.Device) {
				continue
			}
			if !tagsIntersect(tags, r.settings.EventTags(a.Device)) {
				continue
			}
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchesName(names map[string]struct{}, a device.Actuator) bool {
	if _, ok := names[strings.ToLower(strings.TrimSpace(a.ID))]; ok {
		return true
	}
	_, ok := names[strings.ToLower(strings.TrimSpace(a.Device))]
	return ok
}

func tagsIntersect(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, h := range SanitizeNames(have) {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
