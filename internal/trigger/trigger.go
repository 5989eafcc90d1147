package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a cron expression is malformed or can
// never match a future instant, or when an interval is not positive.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Kind discriminates the schedule variants.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
	KindOneShot
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	case KindOneShot:
		return "oneshot"
	}
	return "unknown"
}

// parser accepts the six-field grammar with a leading seconds field:
// seconds minutes hours day-of-month month day-of-week.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a tagged variant over a cron expression, a fixed interval and a
// single deferred firing. The zero value is not usable; construct with
// ParseCron, Interval or OneShot.
type Schedule struct {
	kind  Kind
	expr  string
	cron  cron.Schedule
	every time.Duration
	at    time.Time
}

// ParseCron parses a six-field cron expression. Expressions that parse but
// can never fire (e.g. "0 0 0 30 2 *") are rejected here so the failure
// surfaces at construction, not at dispatch time.
func ParseCron(expr string) (Schedule, error) {
	cs, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
	}
	// The robfig parser gives up after a few years of searching and returns
	// the zero time for expressions with no future occurrence.
	if cs.Next(time.Now()).IsZero() {
		return Schedule{}, fmt.Errorf("%w: %q matches no future instant", ErrInvalidSchedule, expr)
	}
	return Schedule{kind: KindCron, expr: expr, cron: cs}, nil
}

// Interval returns a schedule that fires a fixed duration after each
// completed run.
func Interval(every time.Duration) (Schedule, error) {
	if every <= 0 {
		return Schedule{}, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSchedule, every)
	}
	return Schedule{kind: KindInterval, every: every}, nil
}

// OneShot returns a schedule that fires once at the given instant. An instant
// that has already elapsed is not an error; the schedule simply never fires.
func OneShot(at time.Time) Schedule {
	return Schedule{kind: KindOneShot, at: at}
}

func (s Schedule) Kind() Kind { return s.kind }

// Spec returns a human-readable description for logs and snapshots.
func (s Schedule) Spec() string {
	switch s.kind {
	case KindCron:
		return s.expr
	case KindInterval:
		return "@every " + s.every.String()
	case KindOneShot:
		return "@at " + s.at.Format(time.RFC3339)
	}
	return ""
}

// Next computes the earliest fire instant strictly after the given instant.
// ok is false when the schedule has no future occurrence: an elapsed one-shot
// or an exhausted cron expression.
//
// For a fixed schedule, Next is monotone: non-decreasing inputs produce
// non-decreasing results, which is what keeps the loop from re-firing a past
// occurrence.
func (s Schedule) Next(after time.Time) (next time.Time, ok bool) {
	switch s.kind {
	case KindCron:
		n := s.cron.Next(after)
		return n, !n.IsZero()
	case KindInterval:
		return after.Add(s.every), true
	case KindOneShot:
		if s.at.After(after) {
			return s.at, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}
