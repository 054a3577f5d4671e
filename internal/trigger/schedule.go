package trigger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule forms.
const (
	FormCron     = "cron"
	FormDuration = "duration"
	FormHHMM     = "hhmm"
)

// cronParser accepts 5-field and 6-field (leading seconds) expressions and
// descriptors such as "@hourly" or "@every 30m".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var hhmm = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// Schedule is a parsed, validated routine schedule: either a cron expression
// or a fixed interval.
//
// Accepted strings:
//   - cron: "*/5 * * * *", "0 30 7 * * *", "@hourly", "@every 55m"
//   - duration interval: "55m", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// The prefix "cron:" forces cron; "interval:" or "every:" force an interval.
type Schedule struct {
	Expr  string        // cron expression, empty for intervals
	Every time.Duration // interval, 0 for cron
	Form  string

	cron cron.Schedule
}

func (s Schedule) IsZero() bool     { return s.cron == nil && s.Every <= 0 }
func (s Schedule) IsInterval() bool { return s.Every > 0 }

func (s Schedule) String() string {
	if s.IsInterval() {
		return "every " + s.Every.String()
	}
	return s.Expr
}

// cronSchedule is what robfig/cron runs.
func (s Schedule) cronSchedule() cron.Schedule {
	if s.IsInterval() {
		return cron.Every(s.Every)
	}
	return s.cron
}

// ParseSchedule parses and validates raw.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, errors.New("schedule required")
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		return parseCron(rest)
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			return parseInterval(rest)
		}
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return parseCron(s)
	}
	if sc, err := parseInterval(s); err == nil || hhmm.MatchString(s) {
		return sc, err
	}
	return Schedule{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '55m')", raw)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, errors.New("cron expression required")
	}
	c, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron %q: %w", expr, err)
	}
	return Schedule{Expr: expr, Form: FormCron, cron: c}, nil
}

func parseInterval(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Schedule{}, errors.New("interval required")
	}
	form := FormDuration
	var (
		d   time.Duration
		err error
	)
	if hhmm.MatchString(v) {
		form = FormHHMM
		d, err = parseHHMM(v)
	} else if d, err = time.ParseDuration(v); err != nil {
		err = fmt.Errorf("invalid interval %q (use HH:MM or a duration like '55m')", v)
	}
	if err != nil {
		return Schedule{}, err
	}
	if d <= 0 {
		return Schedule{}, errors.New("interval must be > 0")
	}
	return Schedule{Every: d, Form: form}, nil
}

// parseHHMM reads up to 999 hours and 0..59 minutes as a duration.
func parseHHMM(v string) (time.Duration, error) {
	m := hhmm.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if mins > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
}
