package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// worker runs the background loops: event consumption, the lock gauge and
// retention sweeps.
type worker struct {
	svc     *attendance.Service
	metrics *metrics.Metrics
	log     zerolog.Logger

	pollInterval      time.Duration
	retentionDays     int
	retentionInterval time.Duration
}

func (w *worker) handle(msg queue.Message) {
	switch msg.Type {
	case attendance.EventSnapshotSaved:
		var evt attendance.SnapshotSaved
		if err := msg.Decode(&evt); err != nil {
			w.metrics.EventsHandled.WithLabelValues(msg.Type, "invalid").Inc()
			w.log.Warn().Err(err).Msg("undecodable snapshot event")
			return
		}
		w.metrics.EventsHandled.WithLabelValues(msg.Type, "ok").Inc()
		w.log.Info().
			Str("snapshot", evt.SnapshotID).
			Str("owner", evt.OwnerID).
			Str("group", evt.Group).
			Str("date", evt.Date).
			Int("present", evt.Counts.Present).
			Int("absent", evt.Counts.Absent).
			Int("late", evt.Counts.Late).
			Int("unset", evt.Counts.Unset).
			Msg("attendance recorded")
	default:
		w.metrics.EventsHandled.WithLabelValues(msg.Type, "ignored").Inc()
		w.log.Debug().Str("type", msg.Type).Msg("ignoring event")
	}
}

// consume handles messages until the channel closes.
func (w *worker) consume(messages <-chan queue.Message) {
	for msg := range messages {
		w.handle(msg)
	}
}

// pollLocks refreshes the active lock gauge. A failed poll is skipped until
// the next tick.
func (w *worker) pollLocks(ctx context.Context) {
	n, err := w.svc.CountActiveLocks(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("lock poll failed")
		return
	}
	w.log.Debug().Int("active_locks", n).Msg("lock poll")
}

func (w *worker) sweep(ctx context.Context) {
	res, err := w.svc.SweepRetention(ctx, w.retentionDays)
	if err != nil {
		w.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	w.log.Info().Int("removed", res.Removed).Int("failed", res.Failed).Int("days", w.retentionDays).Msg("retention sweep done")
}

// every runs fn now and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
