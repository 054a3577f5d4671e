package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values the strict decoder cannot.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		add(fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format))
	}

	_, err := ParseDurationField("scheduler.tick", cfg.Scheduler.Tick)
	add(err)
	_, err = ParseDurationField("scheduler.write_timeout", cfg.Scheduler.WriteTimeout)
	add(err)
	if cfg.Scheduler.QueueSize < 0 || cfg.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler: sizes must be >= 0"))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Hardware.Driver)) {
	case "", "fake":
	case "gpio":
		if cfg.Hardware.GPIO == nil || len(cfg.Hardware.GPIO.Lines) == 0 {
			add(errors.New("hardware.gpio: at least one line is required"))
		}
	default:
		add(fmt.Errorf("hardware.driver: unknown driver %q", cfg.Hardware.Driver))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
	}

	names := map[string]struct{}{}
	for i, r := range cfg.Routines {
		path := fmt.Sprintf("routines[%d]", i)
		name := strings.TrimSpace(r.Name)
		if name == "" {
			add(fmt.Errorf("%s.name: required", path))
		} else if _, dup := names[name]; dup {
			add(fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		names[name] = struct{}{}
		if strings.TrimSpace(r.Schedule) == "" {
			add(fmt.Errorf("%s.schedule: required", path))
		}
		if r.Speed < 0 || r.Speed > 100 {
			add(fmt.Errorf("%s.speed: must be within 0..100", path))
		}
		_, err := ParseDurationField(path+".duration", r.Duration)
		add(err)
	}

	if m := cfg.MQTT; m != nil && m.Enabled {
		if strings.TrimSpace(m.Broker) == "" {
			add(errors.New("mqtt.broker: required when enabled"))
		}
		if m.QoS < 0 || m.QoS > 2 {
			add(errors.New("mqtt.qos: must be 0, 1 or 2"))
		}
		_, err := ParseDurationField("mqtt.timeout", m.Timeout)
		add(err)
	}
	return errors.Join(errs...)
}
