package pickup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrScheduleNeverFires is returned for a purge schedule with no future
// activation, such as February 30th.
var ErrScheduleNeverFires = errors.New("purge schedule never fires")

// Store is a Cache that can also drop old entries.
// *database.DB and *rediscache.Cache satisfy it.
type Store interface {
	Cache
	PurgeLookups(ctx context.Context, olderThan time.Time) (int64, error)
}

// Janitor removes lookups older than maxAge on a cron schedule.
type Janitor struct {
	store    Store
	schedule cron.Schedule
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewJanitor parses spec as a five-field cron expression or a descriptor
// such as "@daily".
func NewJanitor(store Store, spec string, maxAge time.Duration, log *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", spec, err)
	}
	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrScheduleNeverFires, spec)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Next returns the first purge time after from.
func (j *Janitor) Next(from time.Time) time.Time {
	return j.schedule.Next(from)
}

// RunOnce purges lookups fetched more than maxAge ago.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.maxAge)
	removed, err := j.store.PurgeLookups(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge lookups: %w", err)
	}
	return removed, nil
}

// Run purges on schedule until ctx is done or the schedule has no
// further activations.
func (j *Janitor) Run(ctx context.Context) {
	for {
		now := j.now()
		next := j.Next(now)
		if next.IsZero() {
			j.logger.Warn("cache purge schedule has no further runs, stopping")
			return
		}
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		removed, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.Error("scheduled cache purge failed", slog.Any("error", err))
			continue
		}
		j.logger.Info("scheduled cache purge",
			slog.Int64("removed", removed),
			slog.Time("next", j.Next(j.now())))
	}
}
