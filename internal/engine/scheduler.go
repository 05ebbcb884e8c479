package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"autoflow/internal/models"
)

// ParseSchedule validates a cron expression against a timezone and returns
// the parsed schedule. The timezone defaults to UTC. A malformed expression
// or unknown timezone is an arming error and must be surfaced to the caller.
func ParseSchedule(expr, timezone string) (cron.Schedule, *time.Location, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil, fmt.Errorf("cron expression is required")
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("CRON_TZ=%s %s", timezone, expr))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, loc, nil
}

// scheduleEntry is one armed periodic firing for a rule.
type scheduleEntry struct {
	ruleID  string
	trigger models.Trigger
	sched   cron.Schedule
	stop    chan struct{}
}

// run fires the entry on every cron period until stopped. It recomputes the
// next fire time after each firing so drift does not accumulate.
func (s *TriggerService) run(e *scheduleEntry) {
	for {
		now := s.clock.Now()
		next := e.sched.Next(now)
		if next.IsZero() {
			// schedule can never fire again
			return
		}
		select {
		case <-e.stop:
			return
		case <-s.clock.After(next.Sub(now)):
			ec := &models.ExecutionContext{
				TriggerData: map[string]interface{}{
					"type":      "scheduled",
					"timestamp": next.UTC().Format(time.RFC3339),
				},
			}
			s.fire(e.ruleID, e.trigger, ec)
		}
	}
}
