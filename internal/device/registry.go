package device

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type snapshot struct {
	devices   map[string]Info
	actuators []Actuator
}

// Registry holds the known devices. Reads load an immutable snapshot;
// writers copy-on-write under a mutex.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{devices: map[string]Info{}})
	return r
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Add inserts or replaces a device.
func (r *Registry) Add(d Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Load()
	next := make(map[string]Info, len(cur.devices)+1)
	for k, v := range cur.devices {
		next[k] = v
	}
	next[key(d.Name)] = d
	r.snap.Store(build(next))
}

// Remove drops a device. It reports whether the device was known.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Load()
	if _, ok := cur.devices[key(name)]; !ok {
		return false
	}
	next := make(map[string]Info, len(cur.devices))
	for k, v := range cur.devices {
		if k != key(name) {
			next[k] = v
		}
	}
	r.snap.Store(build(next))
	return true
}

// Reset replaces the whole device set.
func (r *Registry) Reset(devs []Info) {
	next := make(map[string]Info, len(devs))
	for _, d := range devs {
		next[key(d.Name)] = d
	}
	r.mu.Lock()
	r.snap.Store(build(next))
	r.mu.Unlock()
}

func build(devs map[string]Info) *snapshot {
	s := &snapshot{devices: devs}
	for _, d := range devs {
		s.actuators = append(s.actuators, d.ActuatorList()...)
	}
	sort.Slice(s.actuators, func(i, j int) bool { return s.actuators[i].ID < s.actuators[j].ID })
	return s
}

// List returns a snapshot of all actuators, sorted by ID.
func (r *Registry) List() []Actuator {
	s := r.snap.Load()
	out := make([]Actuator, len(s.actuators))
	copy(out, s.actuators)
	return out
}

// Find looks an actuator up by identifier (case-insensitive).
func (r *Registry) Find(id string) (Actuator, bool) {
	k := key(id)
	for _, a := range r.snap.Load().actuators {
		if key(a.ID) == k {
			return a, true
		}
	}
	return Actuator{}, false
}

// Devices returns the known devices sorted by name.
func (r *Registry) Devices() []Info {
	s := r.snap.Load()
	out := make([]Info, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Connected reports whether a device with this name is currently known.
func (r *Registry) Connected(name string) bool {
	_, ok := r.snap.Load().devices[key(name)]
	return ok
}

// Capabilities lists a device's capability names, one per actuator.
func (r *Registry) Capabilities(name string) []string {
	d, ok := r.snap.Load().devices[key(name)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(d.Actuators))
	for _, c := range d.Actuators {
		out = append(out, c.String())
	}
	return out
}
