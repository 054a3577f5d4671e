package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "telekinesis/pkg/logx"
)

// Sections reported by SummarizeChange.
const (
	SectionLogging   = "logging"
	SectionScheduler = "scheduler"
	SectionEvents    = "events"
	SectionHardware  = "hardware"
	SectionPatterns  = "patterns"
	SectionStorage   = "storage"
	SectionDevices   = "devices"
	SectionRoutines  = "routines"
	SectionMQTT      = "mqtt"
	SectionDebug     = "debug"
)

// SummarizeChange returns the sorted list of changed sections and safe
// structured attrs for logging (never includes credentials).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs,
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}
	if oldCfg.Events != newCfg.Events {
		changed = append(changed, SectionEvents)
	}
	if hashJSON(oldCfg.Hardware) != hashJSON(newCfg.Hardware) {
		changed = append(changed, SectionHardware)
		attrs = append(attrs, logx.String("hardware.driver", newCfg.Hardware.Driver))
	}
	if oldCfg.Patterns != newCfg.Patterns {
		changed = append(changed, SectionPatterns)
	}
	if hashJSON(oldCfg.Storage) != hashJSON(newCfg.Storage) {
		changed = append(changed, SectionStorage)
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}
	if hashJSON(oldCfg.Devices) != hashJSON(newCfg.Devices) {
		changed = append(changed, SectionDevices)
		attrs = append(attrs, logx.Int("devices.entries", len(newCfg.Devices.Entries)))
	}
	if hashJSON(oldCfg.Routines) != hashJSON(newCfg.Routines) {
		changed = append(changed, SectionRoutines)
		attrs = append(attrs, logx.Int("routines.count", len(newCfg.Routines)))
	}

	// Compare MQTT without leaking the password; a password change still counts.
	if hashJSON(oldCfg.MQTT) != hashJSON(newCfg.MQTT) {
		changed = append(changed, SectionMQTT)
		if m := newCfg.MQTT; m != nil {
			attrs = append(attrs,
				logx.Bool("mqtt.enabled", m.Enabled),
				logx.String("mqtt.broker", m.Broker),
				logx.Bool("mqtt.password_set", m.Password != ""),
			)
		}
	}

	if hashJSON(oldCfg.Debug) != hashJSON(newCfg.Debug) {
		changed = append(changed, SectionDebug)
		if d := newCfg.Debug; d != nil {
			attrs = append(attrs,
				logx.Bool("debug.enabled", d.Enabled),
				logx.String("debug.addr", d.Addr),
				logx.Bool("debug.token_set", d.Token != ""),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case SectionHardware, SectionScheduler, SectionEvents, SectionStorage, SectionMQTT:
			out = append(out, s)
		}
	}
	return out
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashJSON(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
