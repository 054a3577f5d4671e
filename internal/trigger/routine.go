// Package trigger fires configured control requests ("routines") on cron
// expressions or fixed intervals.
package trigger

import (
	"errors"
	"fmt"
	"strings"

	"telekinesis/internal/actuation"
	"telekinesis/internal/config"
	"telekinesis/internal/scheduler"
	"telekinesis/internal/selector"
)

// Routine is a named request submitted whenever its schedule fires.
type Routine struct {
	Name     string
	Schedule Schedule
	Request  scheduler.Request
}

// FromConfig validates a routine definition and builds its request.
func FromConfig(rc config.RoutineConfig) (Routine, error) {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return Routine{}, errors.New("routine name required")
	}
	sched, err := ParseSchedule(rc.Schedule)
	if err != nil {
		return Routine{}, fmt.Errorf("routine %q: %w", name, err)
	}

	raw := strings.TrimSpace(rc.Target)
	if raw == "" {
		raw = "all"
	}
	target, err := selector.ParseTarget(raw)
	if err != nil {
		return Routine{}, fmt.Errorf("routine %q: %w", name, err)
	}

	d, err := config.ParseDurationField("routines."+name+".duration", rc.Duration)
	if err != nil {
		return Routine{}, err
	}
	if d <= 0 {
		return Routine{}, fmt.Errorf("routine %q: duration must be > 0", name)
	}

	action := scheduler.Constant(actuation.NewSpeed(int64(rc.Speed)))
	if p := strings.TrimSpace(rc.Pattern); p != "" {
		action = scheduler.PatternNamed(p)
	}

	return Routine{
		Name:     name,
		Schedule: sched,
		Request: scheduler.Request{
			Target:   target,
			Duration: actuation.Timed(d),
			Action:   action,
			Events:   rc.Events,
			Origin:   "routine:" + name,
		},
	}, nil
}

// FromConfigs converts every enabled routine, collecting all errors.
func FromConfigs(rcs []config.RoutineConfig) ([]Routine, error) {
	var (
		out  []Routine
		errs []error
	)
	for _, rc := range rcs {
		if !rc.IsEnabled() {
			continue
		}
		r, err := FromConfig(rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}
