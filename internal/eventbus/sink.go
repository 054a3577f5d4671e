package eventbus

import "sync"

// DefaultPollMax caps how many events one Poll call drains.
const DefaultPollMax = 128

// Sink is the caller-facing single-consumer event queue.
//
// It is a bounded subscription on a Bus: producers never block, and when the
// queue is full the newest event is dropped by the bus (and logged there).
type Sink struct {
	ch    <-chan Event
	unsub func()

	// Poll is single-consumer; the mutex only guards against misuse.
	mu sync.Mutex
}

// NewSink subscribes a queue of the given capacity (defaults to 256).
func NewSink(bus Bus, capacity int) *Sink {
	if capacity <= 0 {
		capacity = 256
	}
	ch, unsub := bus.Subscribe(capacity)
	return &Sink{ch: ch, unsub: unsub}
}

// Poll drains up to max queued events without blocking.
// max <= 0 uses DefaultPollMax.
func (s *Sink) Poll(max int) []Event {
	if max <= 0 {
		max = DefaultPollMax
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for len(out) < max {
		select {
		case e, ok := <-s.ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
	return out
}

// Next returns a single event if one is queued.
func (s *Sink) Next() (Event, bool) {
	evs := s.Poll(1)
	if len(evs) == 0 {
		return Event{}, false
	}
	return evs[0], true
}

// Len reports the number of queued events.
func (s *Sink) Len() int { return len(s.ch) }

// Close detaches the sink from its bus. Queued events stay pollable.
func (s *Sink) Close() { s.unsub() }
