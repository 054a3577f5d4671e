// Package scheduler is the single owner of actuation state.
//
// Every control request becomes a task running in its own supervised
// goroutine. Tasks never talk to hardware directly: each tick hands a write
// batch to the scheduler's writer goroutine, which serializes all hardware
// I/O. Cancellation is cooperative and observed at the next tick boundary;
// every terminal path ends with a zero-intensity write to the task's targets.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
	"telekinesis/internal/eventbus"
	"telekinesis/internal/pattern"
	rtsup "telekinesis/internal/runtime/supervisor"
	"telekinesis/internal/selector"
	logx "telekinesis/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Resolver turns a target description into concrete actuators.
type Resolver interface {
	Resolve(target selector.Target, want device.Capability, events []string) []device.Actuator
}

// Patterns looks up named patterns.
type Patterns interface {
	Get(ctx context.Context, name string) (*pattern.Pattern, error)
}

// Writer performs one hardware write.
type Writer interface {
	WriteScalar(ctx context.Context, a device.Actuator, s actuation.Speed) error
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, r Record) error
}

type Deps struct {
	Resolver Resolver
	Patterns Patterns
	Writer   Writer
	Bus      eventbus.Bus
	Recorder Recorder
	Log      logx.Logger
}

type Service struct {
	cfg  Config
	log  logx.Logger
	warn logx.Logger
	deps Deps

	seq atomic.Uint64

	// mu guards the task table and the lifecycle fields below.
	mu    sync.Mutex
	tasks map[Handle]*task
	inbox chan *task

	core      *rtsup.Supervisor // actor + writer
	runners   *rtsup.Supervisor // task goroutines
	writes    chan *batch
	writerUp  context.Context
	stopActor context.CancelFunc
	actorDone chan struct{}

	hmu     sync.Mutex
	history []Record
}

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "scheduler"))
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		warn:  log.Every(warnThrottleEvery),
		deps:  deps,
		tasks: map[Handle]*task{},
	}
}

func (s *Service) Config() Config { return s.cfg }

// Start launches the actor and writer goroutines. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox != nil {
		return
	}

	s.inbox = make(chan *task, s.cfg.QueueSize)
	s.writes = make(chan *batch)
	s.core = rtsup.New(ctx, rtsup.WithLogger(s.log))
	// Task goroutines are detached from ctx so that their safety writes still
	// run while the parent is being cancelled; Stop cancels them explicitly.
	s.runners = rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(s.log))
	s.writerUp = s.core.Context()

	actx, acancel := context.WithCancel(s.core.Context())
	s.stopActor = acancel
	s.actorDone = make(chan struct{})

	inbox, writes, runners, done := s.inbox, s.writes, s.runners, s.actorDone
	s.core.Go0("scheduler.actor", func(context.Context) {
		defer close(done)
		s.actor(actx, inbox, runners)
	})
	s.core.Go0("scheduler.writer", func(ctx context.Context) { s.writer(ctx, writes) })
	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick),
		logx.Duration("write_timeout", s.cfg.WriteTimeout),
		logx.Int("queue", s.cfg.QueueSize),
	)
}

// Stop cancels every task, waits for their safety writes and then stops the
// actor and writer. ctx bounds the whole shutdown.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.inbox == nil {
		s.mu.Unlock()
		return nil
	}
	inbox, core, runners := s.inbox, s.core, s.runners
	stopActor, actorDone := s.stopActor, s.actorDone
	s.inbox = nil
	s.mu.Unlock()

	// No task may be spawned once runners starts waiting.
	stopActor()
	select {
	case <-actorDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	n := s.CancelAll()

	// Tasks still queued were never started and never wrote anything.
	for drained := false; !drained; {
		select {
		case t := <-inbox:
			t.cancel()
			s.finish(t, ReasonCancelled, time.Now())
		default:
			drained = true
		}
	}

	err := runners.Stop(ctx)
	if cerr := core.Stop(ctx); err == nil {
		err = cerr
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", n))
	return err
}

// Submit resolves the request and enqueues a new task. It never waits for
// hardware; when the inbound queue is saturated it fails with ErrQueueFull.
func (s *Service) Submit(ctx context.Context, req Request) (Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	want := req.Capability
	if want == 0 {
		want = device.Vibrate
	}
	if !want.Scalar() {
		return InvalidHandle, fmt.Errorf("%s: %w", want, ErrUnsupportedCapability)
	}

	prog, err := s.program(ctx, req.Action)
	if err != nil {
		return InvalidHandle, err
	}

	targets := s.deps.Resolver.Resolve(req.Target, want, req.Events)
	if len(targets) == 0 {
		return InvalidHandle, fmt.Errorf("target %q: %w", req.Target, ErrNoTargets)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox == nil {
		return InvalidHandle, ErrStopped
	}
	t := newTask(Handle(s.seq.Add(1)), req, prog, targets)
	s.tasks[t.handle] = t
	select {
	case s.inbox <- t:
	default:
		delete(s.tasks, t.handle)
		t.cancel()
		s.warn.Warn("submission rejected", logx.String("handle", t.handle.String()), logx.Int("queue", cap(s.inbox)))
		return InvalidHandle, ErrQueueFull
	}
	s.log.Debug("task submitted",
		logx.String("handle", t.handle.String()),
		logx.String("action", req.Action.String()),
		logx.String("duration", req.Duration.String()),
		logx.Strings("actuators", t.ids),
	)
	return t.handle, nil
}

func (s *Service) program(ctx context.Context, a Action) (*pattern.Pattern, error) {
	switch a.Kind {
	case ActionConstant:
		return pattern.Constant(a.Speed), nil
	case ActionPattern:
		if a.Inline != nil {
			return a.Inline, nil
		}
		if s.deps.Patterns == nil {
			return nil, fmt.Errorf("pattern %q: %w", a.Pattern, pattern.ErrNotFound)
		}
		p, err := s.deps.Patterns.Get(ctx, a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", a.Pattern, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidAction, a.Kind)
	}
}

// Cancel requests cancellation of a running task. It reports whether the
// task was found; cancelling an already cancelled task is a no-op.
func (s *Service) Cancel(h Handle) bool {
	s.mu.Lock()
	t := s.tasks[h]
	s.mu.Unlock()
	if t == nil {
		return false
	}
	t.cancel()
	return true
}

// CancelAll cancels every active task and returns how many there were.
func (s *Service) CancelAll() int {
	s.mu.Lock()
	ts := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		ts = append(ts, t)
	}
	s.mu.Unlock()
	for _, t := range ts {
		t.cancel()
	}
	if len(ts) > 0 {
		s.log.Info("all tasks cancelled", logx.Int("count", len(ts)))
	}
	return len(ts)
}

// ActiveCount is the number of tasks that have not reached a terminal state.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Running reports whether h names a task that has not reached a terminal state.
func (s *Service) Running(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[h]
	return ok
}

// Active returns the handles of every non-terminal task in submission order.
func (s *Service) Active() []Handle {
	s.mu.Lock()
	out := make([]Handle, 0, len(s.tasks))
	for h := range s.tasks {
		out = append(out, h)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// History returns the most recent finished runs, oldest first.
func (s *Service) History() []Record {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Record(nil), s.history...)
}

func (s *Service) actor(ctx context.Context, inbox <-chan *task, runners *rtsup.Supervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-inbox:
			runners.Go0("task", func(context.Context) { s.run(t) })
		}
	}
}

func (s *Service) record(r Record) {
	s.hmu.Lock()
	s.history = append(s.history, r)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append([]Record(nil), s.history[over:]...)
	}
	s.hmu.Unlock()

	if s.deps.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.deps.Recorder.RecordRun(ctx, r); err != nil {
		s.warn.Warn("run not persisted", logx.String("handle", r.Handle.String()), logx.Err(err))
	}
}

func (s *Service) publish(typ string, data any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
