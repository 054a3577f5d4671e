package scheduler

import (
	"context"
	"time"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
	"telekinesis/internal/eventbus"
	"telekinesis/internal/pattern"
	logx "telekinesis/pkg/logx"
)

type task struct {
	handle   Handle
	req      Request
	program  *pattern.Pattern
	targets  []device.Actuator
	ids      []string
	ctx      context.Context
	cancel   context.CancelFunc
	failures int
	// failing holds the actuators whose last write failed. Only the task
	// goroutine touches it.
	failing map[string]bool
}

func newTask(h Handle, req Request, prog *pattern.Pattern, targets []device.Actuator) *task {
	ctx, cancel := context.WithCancel(context.Background())
	ids := make([]string, len(targets))
	for i, a := range targets {
		ids[i] = a.ID
	}
	return &task{
		handle:  h,
		req:     req,
		program: prog,
		targets: targets,
		ids:     ids,
		ctx:     ctx,
		cancel:  cancel,
		failing: make(map[string]bool),
	}
}

// run drives one task: Running until the duration elapses or the task is
// cancelled, then the safety write, removal from the table and the event.
func (s *Service) run(t *task) {
	started := time.Now()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if limit, ok := t.req.Duration.Limit(); ok {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	reason := ReasonCompleted
loop:
	for {
		if t.ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}
		elapsed := time.Since(started)
		if t.req.Duration.Elapsed(elapsed) {
			break
		}
		s.write(t.ctx, t, t.program.Sample(elapsed))

		select {
		case <-t.ctx.Done():
			reason = ReasonCancelled
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
		}
	}

	// The safety write must not inherit the task's cancellation.
	s.write(context.Background(), t, actuation.MinSpeed())
	t.cancel()
	s.finish(t, reason, started)
}

func (s *Service) finish(t *task, reason Reason, started time.Time) {
	s.mu.Lock()
	delete(s.tasks, t.handle)
	s.mu.Unlock()

	ev := TaskEvent{
		Handle:    t.handle,
		Action:    t.req.Action.String(),
		Origin:    t.req.Origin,
		Actuators: t.ids,
		Started:   started,
		Duration:  time.Since(started),
		Reason:    reason,
		Failures:  t.failures,
	}
	s.record(ev)

	typ := eventbus.TypeTaskCompleted
	if reason == ReasonCancelled {
		typ = eventbus.TypeTaskCancelled
	}
	s.publish(typ, ev)
	s.log.Debug("task finished",
		logx.String("handle", t.handle.String()),
		logx.String("reason", string(reason)),
		logx.Duration("ran", ev.Duration),
		logx.Int("write_failures", t.failures),
	)
}

// write sends one intensity to every target and waits for the batch. Failures
// never stop the task. Every failed write is counted and logged through the
// throttled logger, but the bus only hears about an actuator when it goes from
// healthy to failing and again when it recovers.
func (s *Service) write(ctx context.Context, t *task, speed actuation.Speed) {
	fails := s.submitBatch(ctx, t.targets, speed)
	failed := make(map[string]bool, len(fails))
	for _, f := range fails {
		t.failures++
		failed[f.Actuator] = true
		f.Handle = t.handle
		s.warn.Warn("actuator write failed",
			logx.String("handle", t.handle.String()),
			logx.String("actuator", f.Actuator),
			logx.Int("speed", f.Speed),
			logx.String("err", f.Error),
		)
		if !t.failing[f.Actuator] {
			t.failing[f.Actuator] = true
			s.publish(eventbus.TypeTaskWriteFailed, f)
		}
	}
	for _, id := range t.ids {
		if !t.failing[id] || failed[id] {
			continue
		}
		delete(t.failing, id)
		s.log.Info("actuator write recovered",
			logx.String("handle", t.handle.String()),
			logx.String("actuator", id),
		)
		s.publish(eventbus.TypeTaskWriteRecovered, WriteFailure{
			Handle:   t.handle,
			Actuator: id,
			Speed:    speed.Value(),
		})
	}
}
