package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActuatorIdentifiers(t *testing.T) {
	t.Parallel()
	single := Scalar("vib1", Vibrate).ActuatorList()
	require.Len(t, single, 1)
	assert.Equal(t, "vib1", single[0].ID)

	multi := Info{Name: "Edge", Actuators: []Capability{Vibrate, Vibrate, Rotate}}.ActuatorList()
	require.Len(t, multi, 3)
	assert.Equal(t, "Edge (Vibrate #1)", multi[0].ID)
	assert.Equal(t, "Edge (Vibrate #2)", multi[1].ID)
	assert.Equal(t, "Edge (Rotate)", multi[2].ID)
	for i, a := range multi {
		assert.Equal(t, "Edge", a.Device)
		assert.Equal(t, i, a.Index)
	}
}

func TestRegistryAddRemoveSnapshots(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Add(Scalar("vib2", Vibrate))
	r.Add(Scalar("vib1", Vibrate))
	r.Add(Scalar("lin1", Linear))

	before := r.List()
	require.Len(t, before, 3)
	assert.Equal(t, []string{"lin1", "vib1", "vib2"}, ids(before))

	assert.True(t, r.Remove("VIB1"))
	assert.False(t, r.Remove("vib1"))

	// Earlier snapshots are unaffected by later mutation.
	assert.Len(t, before, 3)
	assert.Equal(t, []string{"lin1", "vib2"}, ids(r.List()))

	a, ok := r.Find(" Vib2 ")
	require.True(t, ok)
	assert.Equal(t, Vibrate, a.Capability)
	_, ok = r.Find("vib1")
	assert.False(t, ok)
}

func TestRegistryDeviceQueries(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Reset([]Info{{Name: "Nora", Actuators: []Capability{Vibrate, Rotate}}})

	assert.True(t, r.Connected("nora"))
	assert.False(t, r.Connected("max"))
	assert.Equal(t, []string{"Vibrate", "Rotate"}, r.Capabilities("Nora"))
	assert.Nil(t, r.Capabilities("max"))
	require.Len(t, r.Devices(), 1)

	r.Reset(nil)
	assert.Empty(t, r.List())
}

func TestParseCapability(t *testing.T) {
	t.Parallel()
	c, err := ParseCapability(" Rotate ")
	require.NoError(t, err)
	assert.Equal(t, Rotate, c)
	_, err = ParseCapability("inflate")
	assert.Error(t, err)
	assert.True(t, Vibrate.Scalar())
	assert.False(t, Linear.Scalar())
}

func ids(as []Actuator) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}
