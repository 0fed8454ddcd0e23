package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

func newTestWorker(t *testing.T, now time.Time) (*worker, *attendance.MemoryRepository) {
	t.Helper()
	repo := attendance.NewMemoryRepository()
	m := metrics.New(prometheus.NewRegistry())
	svc := attendance.NewService(nil, repo, attendance.Options{
		Metrics: m,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
	})
	return &worker{
		svc:               svc,
		metrics:           m,
		log:               zerolog.Nop(),
		pollInterval:      time.Minute,
		retentionDays:     30,
		retentionInterval: time.Hour,
	}, repo
}

func TestWorker_Handle(t *testing.T) {
	w, _ := newTestWorker(t, time.Now())

	msg, err := queue.NewMessage(attendance.EventSnapshotSaved, attendance.SnapshotSaved{
		SnapshotID: "s1",
		OwnerID:    "o",
		Group:      "A",
		Date:       "2024-01-01",
		Counts:     attendance.Counts{Present: 2, Late: 1},
	})
	require.NoError(t, err)
	w.handle(msg)
	w.handle(queue.Message{Type: attendance.EventSnapshotSaved, Body: []byte("{")})
	w.handle(queue.Message{Type: "student.created", Body: []byte("{}")})

	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.EventsHandled.WithLabelValues(attendance.EventSnapshotSaved, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.EventsHandled.WithLabelValues(attendance.EventSnapshotSaved, "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.EventsHandled.WithLabelValues("student.created", "ignored")))
}

func TestWorker_ConsumeDrainsUntilClosed(t *testing.T) {
	w, _ := newTestWorker(t, time.Now())
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := q.Consume(ctx)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		w.consume(messages)
		close(done)
	}()

	msg, err := queue.NewMessage(attendance.EventSnapshotSaved, attendance.SnapshotSaved{SnapshotID: "s1"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(w.metrics.EventsHandled.WithLabelValues(attendance.EventSnapshotSaved, "ok")) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return after the channel closed")
	}
}

func TestWorker_PollLocks(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	w, repo := newTestWorker(t, now)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, attendance.Snapshot{ID: "1", OwnerID: "o", Group: "A", Date: "2024-01-02", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Create(ctx, attendance.Snapshot{ID: "2", OwnerID: "p", Group: "A", Date: "2024-01-02", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, attendance.Snapshot{ID: "3", OwnerID: "o", Group: "B", Date: "2024-01-01", CreatedAt: now.Add(-21 * time.Hour)}))

	w.pollLocks(ctx)
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.ActiveLocks))
}

func TestWorker_Sweep(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w, repo := newTestWorker(t, now)
	ctx := context.Background()

	for i, date := range []string{"2024-01-01", "2024-01-31", "2024-02-15"} {
		require.NoError(t, repo.Create(ctx, attendance.Snapshot{
			ID:        string(rune('a' + i)),
			OwnerID:   "o",
			Group:     "A",
			Date:      date,
			CreatedAt: now.Add(-time.Duration(60-i) * 24 * time.Hour),
		}))
	}

	w.sweep(ctx)
	left, err := repo.List(ctx, "o")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2024-02-15", left[0].Date)
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.RetentionRemoved))
}

func TestEvery_RunsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		every(ctx, time.Hour, func(context.Context) { calls <- struct{}{} })
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("fn was not called on start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("every did not stop")
	}
}
