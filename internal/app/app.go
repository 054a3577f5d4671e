// Package app wires the daemon together and exposes the caller-facing API:
// control requests, device queries, event polling and settings.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"telekinesis/internal/config"
	"telekinesis/internal/device"
	"telekinesis/internal/eventbus"
	"telekinesis/internal/mqtt"
	"telekinesis/internal/observability/debugsrv"
	"telekinesis/internal/pattern"
	"telekinesis/internal/runtime/supervisor"
	"telekinesis/internal/scheduler"
	"telekinesis/internal/selector"
	"telekinesis/internal/storage"
	"telekinesis/internal/trigger"
	logx "telekinesis/pkg/logx"
)

type App struct {
	cfgPath  string
	instance string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus
	sink *eventbus.Sink

	store   storage.Store
	dir     *pattern.DirStore
	library *pattern.Library

	client  device.Client
	reg     *device.Registry
	monitor *device.Monitor
	sel     *selector.Resolver

	sched *scheduler.Service
	trig  *trigger.Service
	debug *debugsrv.Service
}

// New loads the config file and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	instance := uuid.NewString()
	log = log.With(logx.String("instance", instance[:8]))
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New(log.With(logx.String("comp", "eventbus")))
	sink := eventbus.NewSink(bus, cfg.Events.Capacity)

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	var chain pattern.Chain
	var dir *pattern.DirStore
	if d := strings.TrimSpace(cfg.Patterns.Dir); d != "" {
		dir = pattern.NewDirStore(d)
		chain = append(chain, dir)
	}
	if store != nil {
		chain = append(chain, store)
	}
	library := pattern.NewLibrary(chain, log.With(logx.String("comp", "patterns")))

	client, err := openHardware(cfg.Hardware)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	reg := device.NewRegistry()
	monitor := device.NewMonitor(client, reg, bus, log.With(logx.String("comp", "devices")))
	sel := selector.NewResolver(reg, cfgm)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = client.Close()
		closeStore(store)
		return nil, err
	}
	deps := scheduler.Deps{
		Resolver: sel,
		Patterns: library,
		Writer:   client,
		Bus:      bus,
		Log:      log,
	}
	if store != nil {
		deps.Recorder = runRecorder{store: store, instance: instance}
	}
	sched := scheduler.New(schedCfg, deps)

	trig := trigger.New(sched, cfg.Scheduler.Timezone, log)
	routines, err := trigger.FromConfigs(cfg.Routines)
	if err != nil {
		_ = client.Close()
		closeStore(store)
		return nil, err
	}
	if err := trig.Apply(routines); err != nil {
		_ = client.Close()
		closeStore(store)
		return nil, err
	}

	a := &App{
		cfgPath:  cfgPath,
		instance: instance,
		cfgm:     cfgm,
		root:     log,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		sink:     sink,
		store:    store,
		dir:      dir,
		library:  library,
		client:   client,
		reg:      reg,
		monitor:  monitor,
		sel:      sel,
		sched:    sched,
		trig:     trig,
	}
	a.debug = debugsrv.New(mapDebugConfig(cfg), debugsrv.Hooks{
		Status:  func(context.Context) any { return a.Status() },
		StopAll: a.StopAll,
	}, log)
	return a, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Instance is this process's unique id, carried by stored runs and MQTT payloads.
func (a *App) Instance() string { return a.instance }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := trigger.FromConfigs(cfg.Routines); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if cfg.MQTT != nil && cfg.MQTT.Enabled {
			if _, err := mqtt.OptionsFromConfig(cfg.MQTT, a.instance); err != nil {
				return err
			}
		}
		return nil
	})

	// The scheduler is stopped explicitly in Stop so that the safety writes of
	// cancelled tasks still reach the hardware while everything else unwinds.
	a.sched.Start(context.WithoutCancel(a.sup.Context()))

	a.sup.GoRestart("device.monitor", a.monitor.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 15*time.Second))

	a.trig.Start(a.sup.Context())
	a.debug.Start(a.sup.Context())

	if mc := a.cfgm.Get().MQTT; mc != nil && mc.Enabled {
		opts, err := mqtt.OptionsFromConfig(mc, a.instance)
		if err != nil {
			return err
		}
		a.sup.Go0("mqtt.forwarder", func(c context.Context) {
			pub, err := mqtt.Dial(opts, a.root)
			if err != nil {
				a.log.Warn("mqtt unavailable; events not mirrored", logx.Err(err))
				return
			}
			defer pub.Close()
			_ = mqtt.NewForwarder(pub, a.bus, opts, a.root).Run(c)
		})
	}

	// Log events for observability/debug (components can also subscribe themselves).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("event", e.String()))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig applies the live-reloadable sections of a new config.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", restart))
	}

	for _, s := range sections {
		switch s {
		case config.SectionLogging:
			a.logs.Apply(mapLoggingConfig(newCfg))
		case config.SectionScheduler:
			a.trig.SetTimezone(newCfg.Scheduler.Timezone)
		case config.SectionRoutines:
			routines, err := trigger.FromConfigs(newCfg.Routines)
			if err != nil {
				a.log.Warn("invalid routines; keeping valid ones", logx.Err(err))
			}
			if err := a.trig.Apply(routines); err != nil {
				a.log.Warn("routines not fully applied", logx.Err(err))
			}
		case config.SectionDebug:
			a.debug.Reconfigure(a.sup.Context(), mapDebugConfig(newCfg))
		case config.SectionPatterns:
			a.library.Invalidate()
			if oldCfg == nil || strings.TrimSpace(oldCfg.Patterns.Dir) != strings.TrimSpace(newCfg.Patterns.Dir) {
				a.log.Warn("patterns.dir changed; restart required for changes to take effect")
			}
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts the app down. It also releases the resources of an app that was
// never started.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		_ = a.client.Close()
		closeStore(a.store)
		a.sink.Close()
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Routines first so nothing new is submitted, then the scheduler so every
	// task gets its zero write and its terminal event is still forwarded.
	step("routines", time.Second, func(c context.Context) error { a.trig.Stop(c); return nil })
	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })

	a.sup.Cancel()
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("hardware", time.Second, func(context.Context) error { return a.client.Close() })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.sink.Close()

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
