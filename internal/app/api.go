package app

import (
	"context"
	"errors"
	"fmt"

	"telekinesis/internal/actuation"
	"telekinesis/internal/eventbus"
	"telekinesis/internal/pattern"
	"telekinesis/internal/runtime/supervisor"
	"telekinesis/internal/scheduler"
	"telekinesis/internal/selector"
	"telekinesis/internal/storage"
	"telekinesis/internal/trigger"
	logx "telekinesis/pkg/logx"
)

// ---- Control ----

// Submit schedules a control request.
func (a *App) Submit(ctx context.Context, req scheduler.Request) (scheduler.Handle, error) {
	if req.Origin == "" {
		req.Origin = "api"
	}
	return a.sched.Submit(ctx, req)
}

// Vibrate drives every enabled vibrator matching events at speed for d.
func (a *App) Vibrate(ctx context.Context, speed actuation.Speed, d actuation.Duration, events ...string) (scheduler.Handle, error) {
	return a.Submit(ctx, scheduler.Request{
		Target:   selector.All(),
		Duration: d,
		Action:   scheduler.Constant(speed),
		Events:   events,
	})
}

// VibratePattern plays the named pattern on every enabled vibrator matching events.
func (a *App) VibratePattern(ctx context.Context, name string, d actuation.Duration, events ...string) (scheduler.Handle, error) {
	return a.Submit(ctx, scheduler.Request{
		Target:   selector.All(),
		Duration: d,
		Action:   scheduler.PatternNamed(name),
		Events:   events,
	})
}

// StopTask cancels one task. It reports false for unknown or finished handles.
func (a *App) StopTask(h scheduler.Handle) bool { return a.sched.Cancel(h) }

// StopAll cancels every running task and returns how many were cancelled.
func (a *App) StopAll() int { return a.sched.CancelAll() }

func (a *App) ActiveCount() int { return a.sched.ActiveCount() }

// PollEvents drains up to max queued events without blocking.
func (a *App) PollEvents(max int) []eventbus.Event { return a.sink.Poll(max) }

// History returns the most recent finished runs held in memory, oldest first.
func (a *App) History() []scheduler.Record { return a.sched.History() }

// StoredRuns reads run history from storage.
func (a *App) StoredRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentRuns(ctx, limit)
}

// ---- Devices ----

// ActuatorIDs lists every known actuator identifier in order.
func (a *App) ActuatorIDs() []string {
	as := a.reg.List()
	out := make([]string, 0, len(as))
	for _, act := range as {
		out = append(out, act.ID)
	}
	return out
}

func (a *App) DeviceConnected(name string) bool { return a.reg.Connected(name) }

func (a *App) DeviceCapabilities(name string) []string { return a.reg.Capabilities(name) }

// ConnectionStatus is the last hardware client status ("connected",
// "disconnected" or "" before the first listing).
func (a *App) ConnectionStatus() string { return a.monitor.Status() }

// ---- Patterns ----

func (a *App) PatternNames(ctx context.Context, kind pattern.Kind) ([]string, error) {
	return a.library.Names(ctx, kind)
}

// ImportPatterns copies every funscript file of dir into storage and returns
// how many patterns were stored.
func (a *App) ImportPatterns(ctx context.Context, dir string) (int, error) {
	if a.store == nil {
		return 0, storage.ErrDisabled
	}
	src := pattern.NewDirStore(dir)
	n := 0
	var errs []error
	for _, kind := range []pattern.Kind{pattern.KindVibrator, pattern.KindStroker} {
		names, err := src.Names(ctx, kind)
		if err != nil {
			return n, err
		}
		for _, name := range names {
			pts, err := src.LoadKind(ctx, name, kind)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := pattern.New(name, pts); err != nil {
				errs = append(errs, fmt.Errorf("pattern %q: %w", name, err))
				continue
			}
			if err := a.store.PutPattern(ctx, name, kind, pts); err != nil {
				return n, err
			}
			n++
		}
	}
	a.library.Invalidate()
	a.log.Info("patterns imported", logx.String("dir", dir), logx.Int("count", n), logx.Int("skipped", len(errs)))
	return n, errors.Join(errs...)
}

// ---- Settings ----

func (a *App) SettingsEnabled(device string) bool { return a.cfgm.Enabled(device) }

func (a *App) SetEnabled(device string, enabled bool) { a.cfgm.SetDeviceEnabled(device, enabled) }

func (a *App) SettingsEvents(device string) []string { return a.cfgm.EventTags(device) }

func (a *App) SetEvents(device string, events []string) {
	a.cfgm.SetDeviceEvents(device, events)
}

// StoreSettings writes the current settings back to the config file.
func (a *App) StoreSettings() error { return a.cfgm.Save() }

// ReloadConfig re-reads the config file now instead of waiting for the file
// watcher. Accepted changes are applied like any hot reload.
func (a *App) ReloadConfig(ctx context.Context) error {
	changed, err := a.cfgm.Reload(ctx)
	if err != nil {
		return err
	}
	if !changed {
		a.log.Info("config reload requested (no changes)")
	}
	return nil
}

// ---- Routines ----

func (a *App) Routines() []trigger.Status { return a.trig.Statuses() }

// FireRoutine runs a routine immediately, outside its schedule.
func (a *App) FireRoutine(name string) error { return a.trig.Fire(name) }

// ---- Status ----

// Status is a point-in-time view of the daemon, served by the debug server.
type Status struct {
	Instance      string              `json:"instance"`
	Connection    string              `json:"connection"`
	Actuators     []string            `json:"actuators"`
	ActiveTasks   []scheduler.Handle  `json:"active_tasks"`
	EventsQueued  int                 `json:"events_queued"`
	EventsDropped uint64              `json:"events_dropped"`
	Routines      []trigger.Status    `json:"routines,omitempty"`
	Supervisor    supervisor.Snapshot `json:"supervisor"`
}

func (a *App) Status() Status {
	st := Status{
		Instance:      a.instance,
		Connection:    a.ConnectionStatus(),
		Actuators:     a.ActuatorIDs(),
		ActiveTasks:   a.sched.Active(),
		EventsQueued:  a.sink.Len(),
		EventsDropped: a.bus.Dropped(),
		Routines:      a.trig.Statuses(),
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
}
