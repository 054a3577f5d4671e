package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  tick: 20ms
  write_timeout: 500ms
hardware:
  driver: fake
  fake:
    devices:
      - name: Lovense Hush
        actuators: [vibrate]
devices:
  default_enabled: false
  entries:
    lovense hush:
      enabled: true
      events: [Hit, Kiss]
routines:
  - name: morning
    schedule: "07:30"
    speed: 40
    duration: 5s
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "20ms", cfg.Scheduler.Tick)
	require.NotNil(t, cfg.Hardware.Fake)
	assert.Equal(t, "Lovense Hush", cfg.Hardware.Fake.Devices[0].Name)
	require.Len(t, cfg.Routines, 1)
	assert.True(t, cfg.Routines[0].IsEnabled())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.json", `{"logging":{"level":"info","colour":true}}`))
	_, err := m.Load()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.json", `{"logging":{}} {"logging":{}}`))
	_, err := m.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "empty", cfg: Config{}, ok: true},
		{name: "bad tick", cfg: Config{Scheduler: SchedulerConfig{Tick: "soon"}}},
		{name: "negative tick", cfg: Config{Scheduler: SchedulerConfig{Tick: "-1s"}}},
		{name: "unknown driver", cfg: Config{Hardware: HardwareConfig{Driver: "bluetooth"}}},
		{name: "gpio without lines", cfg: Config{Hardware: HardwareConfig{Driver: "gpio"}}},
		{name: "storage driver", cfg: Config{Storage: &StorageConfig{Driver: "postgres"}}},
		{name: "routine without schedule", cfg: Config{Routines: []RoutineConfig{{Name: "a"}}}},
		{name: "duplicate routine", cfg: Config{Routines: []RoutineConfig{
			{Name: "a", Schedule: "5m"}, {Name: "a", Schedule: "5m"},
		}}},
		{name: "routine speed", cfg: Config{Routines: []RoutineConfig{{Name: "a", Schedule: "5m", Speed: 101}}}},
		{name: "mqtt broker", cfg: Config{MQTT: &MQTTConfig{Enabled: true}}},
		{name: "mqtt disabled", cfg: Config{MQTT: &MQTTConfig{}}, ok: true},
		{name: "timezone", cfg: Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.yaml", sampleYAML))
	_, err := m.Load()
	require.NoError(t, err)

	assert.True(t, m.Enabled(" LOVENSE HUSH"))
	assert.False(t, m.Enabled("other"), "default_enabled=false")
	assert.Equal(t, []string{"hit", "kiss"}, m.EventTags("lovense hush"))
	assert.Empty(t, m.EventTags("other"))

	before := m.Get()
	m.SetDeviceEnabled("Other", true)
	m.SetDeviceEvents("other", []string{" Shout ", ""})
	assert.True(t, m.Enabled("other"))
	assert.Equal(t, []string{"shout"}, m.EventTags("OTHER"))
	assert.NotSame(t, before, m.Get())
	assert.Len(t, before.Devices.Entries, 1, "previous snapshot untouched")
}

func TestSettingsDefaultEnabled(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.json", `{}`))
	_, err := m.Load()
	require.NoError(t, err)
	assert.True(t, m.Enabled("anything"))
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"tkd.yaml", "tkd.json"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			body := sampleYAML
			if filepath.Ext(name) == ".json" {
				body = `{"logging":{"level":"info","console":false}}`
			}
			path := writeFile(t, name, body)
			m := NewManager(path)
			_, err := m.Load()
			require.NoError(t, err)

			m.SetDeviceEnabled("On", false)
			m.SetDeviceEvents("On", []string{"yes", "null"})
			require.NoError(t, m.Save())

			again := NewManager(path)
			cfg, err := again.Load()
			require.NoError(t, err)
			assert.False(t, again.Enabled("on"))
			assert.Equal(t, []string{"null", "yes"}, again.EventTags("on"))
			assert.Equal(t, hashConfig(m.Get()), hashConfig(cfg))
		})
	}
}

func TestSubscribeReceivesEdits(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tkd.json", `{}`))
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	m.SetDeviceEnabled("a", false)
	select {
	case cfg := <-ch:
		assert.Contains(t, cfg.Devices.Entries, "a")
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "tkd.json", `{"logging":{"level":"info","console":false}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug","console":false}}`), 0o644))

	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	old := &Config{Logging: LoggingConfig{Level: "info"}}
	next := &Config{
		Logging:  LoggingConfig{Level: "debug"},
		Routines: []RoutineConfig{{Name: "a", Schedule: "5m"}},
		MQTT:     &MQTTConfig{Enabled: true, Broker: "tcp://x:1883", Password: "secret"},
	}
	changed, attrs := SummarizeChange(old, next)
	assert.Equal(t, []string{SectionLogging, SectionMQTT, SectionRoutines}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{SectionMQTT}, RestartRequired(changed))

	changed, _ = SummarizeChange(next, next)
	assert.Empty(t, changed)
}

func TestReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "tkd.yaml", "logging:\n  level: info\n")
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed, "identical file")

	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Logging.Level == "trace" {
			return errors.New("no trace")
		}
		return nil
	})
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: trace\n"), 0o644))
	changed, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, "info", m.Get().Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
	changed, err = m.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "debug", (<-ch).Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0o644))
	_, err = m.Reload(context.Background())
	assert.ErrorContains(t, err, "logging.format")
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	d := &debouncer{delay: 30 * time.Millisecond, fn: func() { n.Add(1) }}
	for i := 0; i < 5; i++ {
		d.trigger()
	}
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
	d.stop()
}
