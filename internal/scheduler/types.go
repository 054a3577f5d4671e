package scheduler

import (
	"fmt"
	"strconv"
	"time"

	"telekinesis/internal/actuation"
	"telekinesis/internal/device"
	"telekinesis/internal/pattern"
	"telekinesis/internal/selector"
)

// Config controls task execution.
type Config struct {
	// Tick is the interval between two writes of a running task.
	Tick time.Duration
	// WriteTimeout bounds a single hardware write. A timed out write counts as failed.
	WriteTimeout time.Duration
	// QueueSize is the capacity of the inbound submission queue.
	QueueSize   int
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

// Handle identifies a submitted task. Handles start at 1 and are never reused
// within a process; the zero value is never issued.
type Handle uint64

const InvalidHandle Handle = 0

func (h Handle) String() string { return strconv.FormatUint(uint64(h), 10) }

type ActionKind int

const (
	ActionConstant ActionKind = iota + 1
	ActionPattern
)

// Action is what a task writes on every tick.
type Action struct {
	Kind  ActionKind
	Speed actuation.Speed
	// Pattern names a pattern resolved through the pattern library.
	Pattern string
	// Inline, when set, is used instead of looking Pattern up.
	Inline *pattern.Pattern
}

func Constant(s actuation.Speed) Action { return Action{Kind: ActionConstant, Speed: s} }

func PatternNamed(name string) Action { return Action{Kind: ActionPattern, Pattern: name} }

func PatternInline(p *pattern.Pattern) Action {
	return Action{Kind: ActionPattern, Pattern: p.Name(), Inline: p}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionConstant:
		return fmt.Sprintf("constant(%s)", a.Speed)
	case ActionPattern:
		return fmt.Sprintf("pattern(%s)", a.Pattern)
	default:
		return "none"
	}
}

// Request is one control request.
type Request struct {
	Target   selector.Target
	Duration actuation.Duration
	Action   Action
	// Events restricts targets to devices tagged with at least one of them.
	// Empty means any device.
	Events []string
	// Capability defaults to Vibrate.
	Capability device.Capability
	// Origin is a free form label ("api", "routine:<name>") kept in history.
	Origin string
}

// Reason is why a task reached its terminal state.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonCancelled Reason = "cancelled"
)

// TaskEvent is the payload of task.completed and task.cancelled bus events.
type TaskEvent struct {
	Handle    Handle        `json:"handle"`
	Action    string        `json:"action"`
	Origin    string        `json:"origin,omitempty"`
	Actuators []string      `json:"actuators"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Reason    Reason        `json:"reason"`
	Failures  int           `json:"write_failures"`
}

// WriteFailure is the payload of task.write_failed and task.write_recovered
// bus events. Error is empty on recovery.
type WriteFailure struct {
	Handle   Handle `json:"handle"`
	Actuator string `json:"actuator"`
	Speed    int    `json:"speed"`
	Error    string `json:"error,omitempty"`
}

// Record is one finished run; History returns the most recent ones.
type Record = TaskEvent
