// Package reconcile drives the Hook Lifecycle Engine's periodic
// re-reconciliation sweep (SPEC_FULL.md B): the same adoption/drift
// correction the boot-time lifecycle.Engine.Reconcile call performs, run
// again on a schedule so a container stopped or removed outside
// forgehostd (docker stop, an OOM kill, a host reboot) is detected without
// a restart. Grounded on the teacher's internal/cron/schedule.go and
// internal/tasks/scheduler.go use of robfig/cron/v3, simplified to wrap
// cron.Cron directly since only one fixed job runs here.
package reconcile

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/forgehook/forgehostd/internal/observability"
)

// cronParser mirrors the teacher's internal/cron support for both
// standard 5-field and extended 6-field (seconds-optional) expressions,
// plus the @every/@daily descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Scheduler runs one function on a cron schedule until Stop is called.
type Scheduler struct {
	cr *cron.Cron
}

// NewScheduler parses schedule and starts running fn on that cadence. The
// first run happens at the schedule's next tick, not immediately — the
// caller's own boot-time Reconcile call covers startup.
func NewScheduler(schedule string, fn func(ctx context.Context) error, logger *observability.Logger) (*Scheduler, error) {
	cr := cron.New(cron.WithParser(cronParser))
	_, err := cr.AddFunc(schedule, func() {
		ctx := context.Background()
		if err := fn(ctx); err != nil {
			logger.Error(ctx, "periodic reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	cr.Start()
	return &Scheduler{cr: cr}, nil
}

// Stop halts the schedule, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cr.Stop().Done()
}
