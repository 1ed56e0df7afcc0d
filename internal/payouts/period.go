package payouts

import (
	"fmt"
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// Period is a half-open [Start, End) invoicing window.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && p.Start.Before(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

const (
	maxScheduleLookback = 2 * 366 * 24 * time.Hour
	// maxBacklogPeriods bounds how many windows one scheduled run will catch up on.
	maxBacklogPeriods = 12
)

// LatestClosedPeriod returns the window between the two most recent firings of
// schedule at or before now. Schedules without a CRON_TZ prefix run in UTC.
func LatestClosedPeriod(schedule string, now time.Time) (Period, error) {
	expr := strings.TrimSpace(schedule)
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	sched, err := robfigcron.ParseStandard(expr)
	if err != nil {
		return Period{}, fmt.Errorf("parse invoice schedule %q: %w", schedule, err)
	}

	for lookback := 35 * 24 * time.Hour; lookback <= maxScheduleLookback; lookback *= 2 {
		var prev, last time.Time
		for t := sched.Next(now.Add(-lookback)); !t.IsZero() && !t.After(now); t = sched.Next(t) {
			prev, last = last, t
		}
		if !prev.IsZero() {
			return Period{Start: prev.UTC(), End: last.UTC()}, nil
		}
	}
	return Period{}, fmt.Errorf("invoice schedule %q has not fired twice in the last two years", schedule)
}
