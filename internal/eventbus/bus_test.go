package eventbus

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "telekinesis/pkg/logx"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDeviceAdded, Data: DeviceEvent{Device: "vib1"}})

	ea := <-a
	ec := <-c
	assert.Equal(t, TypeDeviceAdded, ea.Type)
	assert.Equal(t, ea.Type, ec.Type)
	assert.False(t, ea.Time.IsZero(), "publish stamps time")
}

func TestPublishDropsNewestWhenFull(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	b := New(logx.NewWriter(&buf, "debug"))
	ch, unsub := b.Subscribe(2)
	defer unsub()

	for _, dev := range []string{"a", "b", "c", "d"} {
		b.Publish(Event{Type: TypeDeviceAdded, Data: DeviceEvent{Device: dev}})
	}
	assert.Equal(t, uint64(2), b.Dropped())

	first := <-ch
	second := <-ch
	assert.Equal(t, "a", first.Data.(DeviceEvent).Device)
	assert.Equal(t, "b", second.Data.(DeviceEvent).Device)
	// Drop warnings are throttled to one per interval.
	assert.Equal(t, 1, strings.Count(buf.String(), "event dropped"))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	require.NotPanics(t, func() { b.Publish(Event{Type: "x"}) })
}

func TestEventString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "device.removed|vib2", Event{Type: TypeDeviceRemoved, Data: DeviceEvent{Device: "vib2"}}.String())
	assert.Equal(t, "connection.status|connected", Event{Type: TypeConnectionStatus, Data: ConnectionEvent{Status: "connected"}}.String())
	assert.Equal(t, "x", Event{Type: "x"}.String())
}

func TestPublishStampsSequence(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	ch, unsub := b.Subscribe(4)
	defer unsub()
	require.Equal(t, 1, b.Subscribers())

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: "tick"})
	}
	var seqs []uint64
	for i := 0; i < 3; i++ {
		e := <-ch
		assert.False(t, e.Time.IsZero())
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, uint64(3), b.Published())

	unsub()
	assert.Zero(t, b.Subscribers())
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unsub := b.Subscribe(1)
			for j := 0; j < 50; j++ {
				b.Publish(Event{Type: "x"})
			}
			unsub()
		}()
	}
	wg.Wait()
	assert.Zero(t, b.Subscribers())
	assert.Equal(t, uint64(400), b.Published())
}
