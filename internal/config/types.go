package config

// Config is the daemon configuration, loaded from JSON or YAML.
//
// All durations are Go duration strings (e.g. "50ms", "1s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Events    EventsConfig    `json:"events,omitempty"`
	Hardware  HardwareConfig  `json:"hardware"`
	Patterns  PatternsConfig  `json:"patterns,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Devices   DevicesConfig   `json:"devices,omitempty"`
	Routines  []RoutineConfig `json:"routines,omitempty"`
	MQTT      *MQTTConfig     `json:"mqtt,omitempty"`
	Debug     *DebugConfig    `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Format of console output: "console" (default) or "json".
	Format  string      `json:"format,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls task execution.
//
// Defaults: tick "50ms", write_timeout "1s", queue_size 64, history_size 100.
type SchedulerConfig struct {
	Tick         string `json:"tick,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
	HistorySize  int    `json:"history_size,omitempty"`

	// Timezone for routine schedules (IANA name). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// EventsConfig sizes the caller-facing event queue (default 256).
type EventsConfig struct {
	Capacity int `json:"capacity,omitempty"`
}

// HardwareConfig selects the hardware client.
//
// Example:
//
//	"hardware": { "driver": "gpio", "gpio": { "chip": "gpiochip0", "lines": [ ... ] } }
type HardwareConfig struct {
	// Driver is "fake" (default) or "gpio".
	Driver string        `json:"driver,omitempty"`
	Fake   *FakeHardware `json:"fake,omitempty"`
	GPIO   *GPIOHardware `json:"gpio,omitempty"`
}

type FakeHardware struct {
	Devices []FakeDevice `json:"devices"`
}

type FakeDevice struct {
	Name      string   `json:"name"`
	Actuators []string `json:"actuators"`
}

type GPIOHardware struct {
	Chip  string     `json:"chip"`
	Lines []GPIOLine `json:"lines"`
}

type GPIOLine struct {
	Name       string `json:"name"`
	Offset     int    `json:"offset"`
	Capability string `json:"capability,omitempty"`
	ActiveLow  bool   `json:"active_low,omitempty"`
}

// PatternsConfig points at a directory of funscript files.
type PatternsConfig struct {
	Dir string `json:"dir,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tkd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// DevicesConfig holds per-device settings, keyed by device name.
type DevicesConfig struct {
	// DefaultEnabled applies to devices without an entry. Defaults to true.
	DefaultEnabled *bool                   `json:"default_enabled,omitempty"`
	Entries        map[string]DeviceConfig `json:"entries,omitempty"`
}

type DeviceConfig struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Events  []string `json:"events,omitempty"`
}

// RoutineConfig submits a control request on a schedule.
//
// Schedule accepts a cron expression ("*/5 * * * *"), an interval ("@every 30m"
// or "30m") or an HH:MM interval ("01:30" fires every 90 minutes).
type RoutineConfig struct {
	Name     string   `json:"name"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Schedule string   `json:"schedule"`
	Target   string   `json:"target,omitempty"` // default "all"
	Speed    int      `json:"speed,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Duration string   `json:"duration"`
	Events   []string `json:"events,omitempty"`
}

func (r RoutineConfig) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// MQTTConfig mirrors bus events to a broker.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"` // default "telekinesis"
	QoS         int    `json:"qos,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

// DebugConfig controls the optional HTTP server with /healthz, /status and
// the pprof handlers.
//
// Example:
//
//	"debug": { "enabled": true, "addr": "127.0.0.1:6060" }
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
