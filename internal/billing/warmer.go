package billing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var warmScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Warmer refreshes every range on a cron schedule so dashboard requests are
// served from the snapshot cache.
type Warmer struct {
	service  *Service
	schedule string
	loc      *time.Location
	logger   *slog.Logger

	cron      *cron.Cron
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWarmer returns nil when there is nothing to warm: no schedule, no
// billing source, or no cache to hold the results.
func NewWarmer(service *Service, schedule string, loc *time.Location, logger *slog.Logger) *Warmer {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" || !service.Configured() || service.cache == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{service: service, schedule: schedule, loc: loc, logger: logger}
}

// ValidateSchedule reports whether spec parses as a warm schedule.
func ValidateSchedule(spec string) error {
	_, err := warmScheduleParser.Parse(strings.TrimSpace(spec))
	return err
}

// Start registers the schedule and starts the cron loop.
func (w *Warmer) Start() error {
	if w == nil {
		return nil
	}
	var err error
	w.startOnce.Do(func() {
		c := cron.New(cron.WithParser(warmScheduleParser), cron.WithLocation(w.loc))
		if _, err = c.AddFunc(w.schedule, func() { w.WarmAll(context.Background()) }); err != nil {
			return
		}
		w.cron = c
		w.cron.Start()
		w.logger.Info("billing warmer started", slog.String("schedule", w.schedule), slog.String("tz", w.loc.String()))
	})
	return err
}

// Stop halts the schedule and waits briefly for a running warm-up.
func (w *Warmer) Stop() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		if w.cron == nil {
			return
		}
		ctx := w.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
			w.logger.Warn("billing warmer stop timed out")
		}
	})
}

// WarmAll refreshes each range in turn and returns how many succeeded.
func (w *Warmer) WarmAll(ctx context.Context) int {
	ok := 0
	for _, key := range RangeKeys {
		res := w.service.Refresh(ctx, key)
		if res.Ok() {
			ok++
			continue
		}
		w.logger.Warn("billing warm-up failed", slog.String("range", string(key)), slog.String("reason", string(res.Reason)))
	}
	w.logger.Debug("billing warm-up finished", slog.Int("refreshed", ok), slog.Int("ranges", len(RangeKeys)))
	return ok
}
