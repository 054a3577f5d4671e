package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logx "telekinesis/pkg/logx"
)

// Event is a lightweight, in-memory status signal.
//
// Publish never blocks; a subscriber whose buffer is full misses the event.
//
// Data carries a small typed payload (DeviceEvent, ConnectionEvent, or the
// scheduler's TaskEvent).
type Event struct {
	// Seq increases by one per published event; a gap seen by one consumer
	// means it missed events.
	Seq  uint64
	Type string
	Time time.Time
	Data any
}

// Event types.
const (
	TypeConnectionStatus   = "connection.status"
	TypeDeviceAdded        = "device.added"
	TypeDeviceRemoved      = "device.removed"
	TypeTaskCompleted      = "task.completed"
	TypeTaskCancelled      = "task.cancelled"
	TypeTaskWriteFailed    = "task.write_failed"
	TypeTaskWriteRecovered = "task.write_recovered"
)

// DeviceEvent is the payload of device.added / device.removed.
type DeviceEvent struct {
	Device       string   `json:"device"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ConnectionEvent is the payload of connection.status.
type ConnectionEvent struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// String renders the event as "type|detail" for line-oriented consumers.
func (e Event) String() string {
	switch d := e.Data.(type) {
	case DeviceEvent:
		return e.Type + "|" + d.Device
	case ConnectionEvent:
		return e.Type + "|" + d.Status
	case fmt.Stringer:
		return e.Type + "|" + d.String()
	case nil:
		return e.Type
	default:
		return fmt.Sprintf("%s|%v", e.Type, d)
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus. It runs no goroutines.
func New(log logx.Logger) *MemBus {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MemBus{
		subs:    map[uint64]chan Event{},
		dropLog: log.Every(5 * time.Second),
	}
}

// MemBus delivers each event to every subscriber without blocking. Sends
// happen under the read lock and unsubscribe closes under the write lock, so
// a channel is never closed mid-send.
type MemBus struct {
	mu    sync.RWMutex
	subs  map[uint64]chan Event
	subID uint64 // guarded by mu

	seq     atomic.Uint64
	dropped atomic.Uint64
	dropLog logx.Logger
}

// Publish stamps e with the next sequence number (and the current time when
// unset) and offers it to every subscriber. A full subscriber misses it.
func (b *MemBus) Publish(e Event) {
	e.Seq = b.seq.Add(1)
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			n := b.dropped.Add(1)
			b.dropLog.Warn("event dropped: subscriber queue full",
				logx.String("type", e.Type),
				logx.Int("queue_cap", cap(ch)),
				logx.Uint64("dropped_total", n),
			)
		}
	}
}

// Subscribe registers a buffered subscriber (8 when buffer <= 0). The
// returned func unsubscribes and closes the channel; it is idempotent.
func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subID++
	id := b.subID
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Subscribers is the current number of subscriptions.
func (b *MemBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of deliveries dropped across all subscribers.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Published returns the sequence number of the last published event.
func (b *MemBus) Published() uint64 { return b.seq.Load() }
