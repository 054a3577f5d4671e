package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"telekinesis/internal/actuation"
)

// Write is one recorded scalar write.
type Write struct {
	Actuator string
	Speed    actuation.Speed
	At       time.Time
}

// FakeClient is an in-memory Client. It backs tests and the "fake" hardware
// driver: devices are scripted, writes are recorded per actuator.
type FakeClient struct {
	mu      sync.Mutex
	devices map[string]Info
	writes  []Write
	failing map[string]error
	delay   time.Duration

	events chan ClientEvent
	closed bool
}

func NewFakeClient(devs ...Info) *FakeClient {
	f := &FakeClient{
		devices: map[string]Info{},
		failing: map[string]error{},
		events:  make(chan ClientEvent, 64),
	}
	for _, d := range devs {
		f.devices[key(d.Name)] = d
	}
	return f
}

// Scalar is a shorthand for a single-actuator device.
func Scalar(name string, c Capability) Info {
	return Info{Name: name, Actuators: []Capability{c}}
}

func (f *FakeClient) Devices(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Info, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *FakeClient) WriteScalar(ctx context.Context, a Actuator, s actuation.Speed) error {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[key(a.Device)]; !ok {
		return fmt.Errorf("%s: %w", a.Device, ErrDisconnected)
	}
	if err := f.failing[key(a.Device)]; err != nil {
		return err
	}
	f.writes = append(f.writes, Write{Actuator: a.ID, Speed: s, At: time.Now()})
	return nil
}

func (f *FakeClient) Events() <-chan ClientEvent { return f.events }

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Connect adds a device and emits an EventAdded.
func (f *FakeClient) Connect(d Info) {
	f.mu.Lock()
	f.devices[key(d.Name)] = d
	f.mu.Unlock()
	f.emit(ClientEvent{Kind: EventAdded, Device: d})
}

// Disconnect removes a device and emits an EventRemoved.
func (f *FakeClient) Disconnect(name string) {
	f.mu.Lock()
	d, ok := f.devices[key(name)]
	delete(f.devices, key(name))
	f.mu.Unlock()
	if ok {
		f.emit(ClientEvent{Kind: EventRemoved, Device: d})
	}
}

// Emit pushes a raw feed event (e.g. a connection status change).
func (f *FakeClient) Emit(ev ClientEvent) { f.emit(ev) }

func (f *FakeClient) emit(ev ClientEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- ev:
	default:
	}
}

// FailWrites makes writes to a device return err (nil clears it).
func (f *FakeClient) FailWrites(device string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.failing, key(device))
	} else {
		f.failing[key(device)] = err
	}
	f.mu.Unlock()
}

// SetWriteDelay makes every write block for d (bounded by the write ctx).
func (f *FakeClient) SetWriteDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Writes returns all recorded writes for an actuator ID, oldest first.
func (f *FakeClient) Writes(actuatorID string) []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Write
	for _, w := range f.writes {
		if strings.EqualFold(w.Actuator, actuatorID) {
			out = append(out, w)
		}
	}
	return out
}

// AllWrites returns every recorded write, oldest first.
func (f *FakeClient) AllWrites() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}
