package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs a sweep every minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper calls Store.SweepExpired on a cron schedule.
type Sweeper struct {
	store    *Store
	cron     *cron.Cron
	logger   *slog.Logger
	timeout  time.Duration
	schedule string
}

// ParseSchedule validates a cron spec or descriptor such as "@every 1m".
func ParseSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// NewSweeper schedules sweeps of store. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(store *Store, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	sw := &Sweeper{
		store:    store,
		cron:     cron.New(),
		logger:   logger,
		timeout:  30 * time.Second,
		schedule: schedule,
	}
	if _, err := sw.cron.AddFunc(schedule, sw.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return sw, nil
}

func (sw *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sw.timeout)
	defer cancel()
	sw.store.SweepExpired(ctx)
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sweep to finish.
func (sw *Sweeper) Run(ctx context.Context) error {
	sw.logger.Info("session sweeper started",
		"schedule", sw.schedule,
		"backend", sw.store.BackendName(),
	)
	sw.cron.Start()
	<-ctx.Done()
	<-sw.cron.Stop().Done()
	sw.logger.Info("session sweeper stopped")
	return nil
}
