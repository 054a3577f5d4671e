package device

import (
	"context"
	"errors"
	"sync/atomic"

	"telekinesis/internal/eventbus"
	logx "telekinesis/pkg/logx"
)

// Connection status values published as eventbus.ConnectionEvent.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

var errFeedClosed = errors.New("device feed closed")

// Monitor mirrors a Client's device set into a Registry and republishes
// connection changes on the bus. It is the registry's only writer.
type Monitor struct {
	client Client
	reg    *Registry
	bus    eventbus.Bus
	log    logx.Logger

	status atomic.Value // string
}

func NewMonitor(client Client, reg *Registry, bus eventbus.Bus, log logx.Logger) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{client: client, reg: reg, bus: bus, log: log}
}

// Run performs the initial device listing, then follows the client feed
// until ctx is done. A closed feed returns an error so a supervisor can restart it.
func (m *Monitor) Run(ctx context.Context) error {
	devs, err := m.client.Devices(ctx)
	if err != nil {
		m.publish(eventbus.TypeConnectionStatus, eventbus.ConnectionEvent{Status: StatusDisconnected, Detail: err.Error()})
		return err
	}
	m.reg.Reset(devs)
	m.publish(eventbus.TypeConnectionStatus, eventbus.ConnectionEvent{Status: StatusConnected})
	for _, d := range devs {
		m.publish(eventbus.TypeDeviceAdded, deviceEvent(d))
	}
	m.log.Info("devices listed", logx.Int("devices", len(devs)))

	feed := m.client.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-feed:
			if !ok {
				m.publish(eventbus.TypeConnectionStatus, eventbus.ConnectionEvent{Status: StatusDisconnected, Detail: "feed closed"})
				return errFeedClosed
			}
			m.apply(ev)
		}
	}
}

func (m *Monitor) apply(ev ClientEvent) {
	switch ev.Kind {
	case EventAdded:
		m.reg.Add(ev.Device)
		m.log.Info("device added", logx.String("device", ev.Device.Name), logx.Int("actuators", len(ev.Device.Actuators)))
		m.publish(eventbus.TypeDeviceAdded, deviceEvent(ev.Device))
	case EventRemoved:
		if m.reg.Remove(ev.Device.Name) {
			m.log.Info("device removed", logx.String("device", ev.Device.Name))
		}
		m.publish(eventbus.TypeDeviceRemoved, eventbus.DeviceEvent{Device: ev.Device.Name})
	case EventConnected:
		m.publish(eventbus.TypeConnectionStatus, eventbus.ConnectionEvent{Status: StatusConnected, Detail: ev.Detail})
	case EventDisconnected:
		m.log.Warn("hardware client disconnected", logx.String("detail", ev.Detail))
		m.publish(eventbus.TypeConnectionStatus, eventbus.ConnectionEvent{Status: StatusDisconnected, Detail: ev.Detail})
	default:
		m.log.Debug("unknown device event ignored", logx.Int("kind", int(ev.Kind)))
	}
}

// Status returns the last observed connection status ("" before the first Run).
func (m *Monitor) Status() string {
	s, _ := m.status.Load().(string)
	return s
}

func (m *Monitor) publish(typ string, data any) {
	if ce, ok := data.(eventbus.ConnectionEvent); ok {
		m.status.Store(ce.Status)
	}
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func deviceEvent(d Info) eventbus.DeviceEvent {
	caps := make([]string, 0, len(d.Actuators))
	for _, c := range d.Actuators {
		caps = append(caps, c.String())
	}
	return eventbus.DeviceEvent{Device: d.Name, Capabilities: caps}
}
