package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"telekinesis/internal/config"
	"telekinesis/internal/device"
	"telekinesis/internal/device/gpio"
	"telekinesis/internal/observability/debugsrv"
	"telekinesis/internal/scheduler"
	"telekinesis/internal/storage"
	logx "telekinesis/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.TrimSpace(sc.Driver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	dl := strings.ToLower(driver)
	switch dl {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	tick, err := config.ParseDurationField("scheduler.tick", sc.Tick)
	if err != nil {
		return scheduler.Config{}, err
	}
	wt, err := config.ParseDurationField("scheduler.write_timeout", sc.WriteTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	// Zero values are filled in by the scheduler.
	return scheduler.Config{
		Tick:         tick,
		WriteTimeout: wt,
		QueueSize:    sc.QueueSize,
		HistorySize:  sc.HistorySize,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	d := cfg.Debug
	if d == nil {
		return debugsrv.Config{}
	}
	return debugsrv.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}

// openHardware builds the configured hardware client. The fake driver is the
// default and serves demos and tests.
func openHardware(hc config.HardwareConfig) (device.Client, error) {
	switch strings.ToLower(strings.TrimSpace(hc.Driver)) {
	case "", "fake":
		var devs []device.Info
		if hc.Fake != nil {
			for _, fd := range hc.Fake.Devices {
				info := device.Info{Name: strings.TrimSpace(fd.Name)}
				for _, raw := range fd.Actuators {
					c, err := device.ParseCapability(raw)
					if err != nil {
						return nil, fmt.Errorf("hardware.fake device %q: %w", fd.Name, err)
					}
					info.Actuators = append(info.Actuators, c)
				}
				devs = append(devs, info)
			}
		}
		return device.NewFakeClient(devs...), nil
	case "gpio":
		gc, err := mapGPIOConfig(hc.GPIO)
		if err != nil {
			return nil, err
		}
		c, err := gpio.Open(gc)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown hardware.driver: %s", hc.Driver)
	}
}

func mapGPIOConfig(g *config.GPIOHardware) (gpio.Config, error) {
	if g == nil {
		return gpio.Config{}, fmt.Errorf("hardware.gpio is required when hardware.driver=gpio")
	}
	out := gpio.Config{Chip: strings.TrimSpace(g.Chip)}
	for _, l := range g.Lines {
		c := device.Vibrate
		if strings.TrimSpace(l.Capability) != "" {
			parsed, err := device.ParseCapability(l.Capability)
			if err != nil {
				return gpio.Config{}, fmt.Errorf("hardware.gpio line %q: %w", l.Name, err)
			}
			c = parsed
		}
		out.Lines = append(out.Lines, gpio.Line{Name: l.Name, Offset: l.Offset, Capability: c, ActiveLow: l.ActiveLow})
	}
	return out, nil
}

// runRecorder appends finished runs to storage.
type runRecorder struct {
	store    storage.Store
	instance string
}

func (r runRecorder) RecordRun(ctx context.Context, rec scheduler.Record) error {
	return r.store.AppendRun(ctx, storage.Run{
		Instance:  r.instance,
		Handle:    uint64(rec.Handle),
		Action:    rec.Action,
		Origin:    rec.Origin,
		Actuators: rec.Actuators,
		Started:   rec.Started,
		TookMS:    rec.Duration.Milliseconds(),
		Reason:    string(rec.Reason),
		Failures:  rec.Failures,
	})
}
