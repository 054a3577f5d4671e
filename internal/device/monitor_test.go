package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telekinesis/internal/actuation"
	"telekinesis/internal/eventbus"
	logx "telekinesis/pkg/logx"
)

func TestMonitorMirrorsClient(t *testing.T) {
	t.Parallel()
	client := NewFakeClient(Scalar("vib1", Vibrate))
	reg := NewRegistry()
	bus := eventbus.New(logx.Nop())
	sink := eventbus.NewSink(bus, 32)
	m := NewMonitor(client, reg, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Status() == StatusConnected }, time.Second, 5*time.Millisecond)
	assert.True(t, reg.Connected("vib1"))

	client.Connect(Scalar("rot1", Rotate))
	require.Eventually(t, func() bool { return reg.Connected("rot1") }, time.Second, 5*time.Millisecond)

	client.Disconnect("vib1")
	require.Eventually(t, func() bool { return !reg.Connected("vib1") }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	var types []string
	for _, e := range sink.Poll(0) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		eventbus.TypeConnectionStatus,
		eventbus.TypeDeviceAdded,
		eventbus.TypeDeviceAdded,
		eventbus.TypeDeviceRemoved,
	}, types)
}

func TestMonitorReportsClosedFeed(t *testing.T) {
	t.Parallel()
	client := NewFakeClient()
	m := NewMonitor(client, NewRegistry(), nil, logx.Nop())
	require.NoError(t, client.Close())

	err := m.Run(context.Background())
	assert.True(t, errors.Is(err, errFeedClosed))
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestFakeClientWrites(t *testing.T) {
	t.Parallel()
	client := NewFakeClient(Scalar("vib1", Vibrate))
	a := Scalar("vib1", Vibrate).ActuatorList()[0]
	ctx := context.Background()

	require.NoError(t, client.WriteScalar(ctx, a, actuation.NewSpeed(40)))
	require.Len(t, client.Writes("VIB1"), 1)

	client.FailWrites("vib1", errors.New("boom"))
	assert.Error(t, client.WriteScalar(ctx, a, actuation.MaxSpeed()))
	client.FailWrites("vib1", nil)

	client.Disconnect("vib1")
	err := client.WriteScalar(ctx, a, actuation.MaxSpeed())
	assert.True(t, errors.Is(err, ErrDisconnected))

	client.SetWriteDelay(time.Second)
	client.Connect(Scalar("vib1", Vibrate))
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.WriteScalar(tctx, a, actuation.MaxSpeed()), context.DeadlineExceeded)
	assert.Len(t, client.Writes("vib1"), 1)
}
