package warden

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Interval is a recurring schedule: one of the fixed hourly, daily or weekly
// periods, or a cron expression. The fixed periods step by calendar units in
// the time's own location, so a daily interval keeps firing at the same
// local time across DST transitions.
type Interval struct {
	kind  intervalKind
	expr  string
	sched cron.Schedule
}

type intervalKind int

const (
	intervalNone intervalKind = iota
	intervalHourly
	intervalDaily
	intervalWeekly
	intervalCron
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseInterval parses "hourly", "daily", "weekly" or a standard five-field
// cron expression.
func ParseInterval(s string) (Interval, error) {
	switch s {
	case "hourly":
		return Interval{kind: intervalHourly}, nil
	case "daily":
		return Interval{kind: intervalDaily}, nil
	case "weekly":
		return Interval{kind: intervalWeekly}, nil
	}

	sched, err := cronParser.Parse(s)
	if err != nil {
		return Interval{}, errors.Wrapf(err, "invalid interval %q", s)
	}

	return Interval{kind: intervalCron, expr: s, sched: sched}, nil
}

// Hourly, Daily and Weekly are the fixed-period intervals.
func Hourly() Interval { return Interval{kind: intervalHourly} }
func Daily() Interval  { return Interval{kind: intervalDaily} }
func Weekly() Interval { return Interval{kind: intervalWeekly} }

// IsZero reports whether the interval was never set.
func (iv Interval) IsZero() bool { return iv.kind == intervalNone }

func (iv Interval) String() string {
	switch iv.kind {
	case intervalHourly:
		return "hourly"
	case intervalDaily:
		return "daily"
	case intervalWeekly:
		return "weekly"
	case intervalCron:
		return iv.expr
	default:
		return ""
	}
}

// Next computes how long to wait from now until the interval is next due.
// A nil last means the interval has never fired; the first period is then
// anchored at now. A zero duration means the interval is already due
// (catch-up after downtime fires exactly once, after which the new last
// re-anchors the cadence). The returned duration is never negative.
//
// For cron intervals, ok is false once no future occurrence exists; the
// caller must then disable the event source for the rest of the run.
//
// Both last and now must already be in the operator's configured location so
// that daily and weekly boundaries align with local calendar days.
func (iv Interval) Next(last *time.Time, now time.Time) (d time.Duration, ok bool) {
	if iv.kind == intervalCron {
		next := iv.sched.Next(now)
		if next.IsZero() {
			return 0, false
		}
		return next.Sub(now), true
	}

	base := now
	if last != nil {
		base = *last
	}

	var candidate time.Time
	switch iv.kind {
	case intervalHourly:
		candidate = base.Add(time.Hour)
	case intervalDaily:
		candidate = base.AddDate(0, 0, 1)
	case intervalWeekly:
		candidate = base.AddDate(0, 0, 7)
	default:
		return 0, false
	}

	if candidate.Before(now) {
		return 0, true
	}

	return candidate.Sub(now), true
}

// UnmarshalYAML decodes the interval from its string form.
func (iv *Interval) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := ParseInterval(s)
	if err != nil {
		return err
	}

	*iv = parsed
	return nil
}

// MarshalYAML encodes the interval as its string form.
func (iv Interval) MarshalYAML() (interface{}, error) {
	return iv.String(), nil
}
