package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"telekinesis/internal/scheduler"
	logx "telekinesis/pkg/logx"
)

// Submitter is the part of the task scheduler routines need.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.Request) (scheduler.Handle, error)
	Running(h scheduler.Handle) bool
}

// Status is a diagnostics view of one routine.
type Status struct {
	Name       string
	Schedule   string
	Next       time.Time
	LastFired  time.Time
	LastHandle scheduler.Handle
	LastError  string
	Fired      uint64
	Skipped    uint64
}

type entry struct {
	routine Routine
	id      cron.EntryID

	mu     sync.Mutex
	status Status
	// inflight is set between the running check and the end of Submit so a
	// cron tick and a manual Fire cannot both pass the check.
	inflight bool
}

// Service owns a robfig/cron instance. A routine whose previous run is still
// active is skipped rather than stacked.
type Service struct {
	sub Submitter
	log logx.Logger

	mu       sync.Mutex
	c        *cron.Cron
	loc      *time.Location
	timezone string
	entries  map[string]*entry
	baseCtx  context.Context
}

func New(sub Submitter, timezone string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sub:      sub,
		log:      log.With(logx.String("comp", "trigger")),
		timezone: timezone,
		entries:  map[string]*entry{},
		baseCtx:  context.Background(),
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start begins firing. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.baseCtx = ctx
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	for _, e := range s.entries {
		s.addLocked(e)
	}
	s.c.Start()
	s.log.Info("routines started", logx.String("tz", s.loc.String()), logx.Int("routines", len(s.entries)))
}

// Stop halts firing and waits for in-flight submissions, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("routines stopped")
}

// Apply replaces the routine set. Routines without a schedule are reported
// and the remaining ones are still installed.
func (s *Service) Apply(routines []Routine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		for _, e := range s.entries {
			s.c.Remove(e.id)
		}
	}
	next := make(map[string]*entry, len(routines))
	var errs []error
	for _, r := range routines {
		if r.Schedule.IsZero() {
			errs = append(errs, fmt.Errorf("routine %q: no schedule", r.Name))
			continue
		}
		e := &entry{routine: r, status: Status{Name: r.Name, Schedule: r.Schedule.String()}}
		if old := s.entries[r.Name]; old != nil {
			old.mu.Lock()
			e.status.Fired, e.status.Skipped = old.status.Fired, old.status.Skipped
			e.status.LastHandle, e.status.LastFired = old.status.LastHandle, old.status.LastFired
			old.mu.Unlock()
		}
		if s.c != nil {
			s.addLocked(e)
		}
		next[r.Name] = e
	}
	s.entries = next
	return errors.Join(errs...)
}

// SetTimezone changes the schedule location; a running cron is rebuilt.
func (s *Service) SetTimezone(tz string) {
	s.mu.Lock()
	if strings.TrimSpace(tz) == strings.TrimSpace(s.timezone) {
		s.mu.Unlock()
		return
	}
	s.timezone = tz
	running := s.c != nil
	ctx := s.baseCtx
	s.mu.Unlock()

	if running {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.Stop(stopCtx)
		cancel()
		s.Start(ctx)
	}
}

func (s *Service) addLocked(e *entry) {
	e.id = s.c.Schedule(e.routine.Schedule.cronSchedule(), cron.FuncJob(func() { s.fire(e) }))
}

func (s *Service) fire(e *entry) {
	e.mu.Lock()
	last := e.status.LastHandle
	if e.inflight || (last != scheduler.InvalidHandle && s.sub.Running(last)) {
		e.status.Skipped++
		e.mu.Unlock()
		s.log.Debug("routine skipped; previous run active", logx.String("routine", e.routine.Name), logx.String("handle", last.String()))
		return
	}
	e.inflight = true
	e.mu.Unlock()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	h, err := s.sub.Submit(ctx, e.routine.Request)

	e.mu.Lock()
	e.inflight = false
	e.status.Fired++
	e.status.LastFired = time.Now()
	if err != nil {
		e.status.LastError = err.Error()
	} else {
		e.status.LastError = ""
		e.status.LastHandle = h
	}
	e.mu.Unlock()

	if err != nil {
		s.log.Warn("routine submit failed", logx.String("routine", e.routine.Name), logx.Err(err))
		return
	}
	s.log.Info("routine fired", logx.String("routine", e.routine.Name), logx.String("handle", h.String()))
}

// Fire runs a routine now, outside its schedule.
func (s *Service) Fire(name string) error {
	s.mu.Lock()
	e := s.entries[name]
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("routine %q not found", name)
	}
	s.fire(e)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.LastError != "" {
		return errors.New(e.status.LastError)
	}
	return nil
}

// Statuses returns every routine's status sorted by name.
func (s *Service) Statuses() []Status {
	s.mu.Lock()
	c := s.c
	entries := make([]*entry, 0, len(s.entries))
	ids := make([]cron.EntryID, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
		ids = append(ids, e.id)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		st := e.status
		e.mu.Unlock()
		if c != nil && ids[i] != 0 {
			st.Next = c.Entry(ids[i]).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
