package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"rollcall/internal/metrics"
	"rollcall/internal/roster"
)

const (
	// DefaultDraftTTL bounds how long an unsaved draft is kept.
	DefaultDraftTTL = 12 * time.Hour
	claimTTL        = 10 * time.Second
)

// StudentSource lists an owner's roster.
type StudentSource interface {
	List(ctx context.Context, ownerID, search string) ([]roster.Student, error)
}

// Options configures a Service. Zero values fall back to in-memory
// collaborators and the default cooldown.
type Options struct {
	Cooldown time.Duration
	DraftTTL time.Duration
	Location *time.Location
	Drafts   DraftStore
	Claims   Claimer
	Events   Publisher
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Service coordinates sessions, the resubmission guard and snapshot history.
type Service struct {
	students StudentSource
	history  HistoryRepository
	drafts   DraftStore
	claims   Claimer
	events   Publisher
	guard    *Guard
	metrics  *metrics.Metrics
	log      zerolog.Logger
	loc      *time.Location
	draftTTL time.Duration
	now      func() time.Time
}

// NewService creates a service backed by the roster and a history repository.
func NewService(students StudentSource, history HistoryRepository, opts Options) *Service {
	s := &Service{
		students: students,
		history:  history,
		drafts:   opts.Drafts,
		claims:   opts.Claims,
		events:   opts.Events,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		loc:      opts.Location,
		draftTTL: opts.DraftTTL,
		now:      opts.Now,
	}
	if s.drafts == nil {
		s.drafts = NewMemoryDraftStore()
	}
	if s.claims == nil {
		s.claims = NewMemoryClaimer()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.draftTTL <= 0 {
		s.draftTTL = DefaultDraftTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.guard = NewGuard(opts.Cooldown)
	s.guard.Now = s.now
	return s
}

// Cooldown returns the configured lock window.
func (s *Service) Cooldown() time.Duration { return s.guard.Cooldown }

// Today returns the current calendar date in the service time zone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DateLayout)
}

// Eligible returns the students for a (group, weekday) selection. Either
// selector left empty yields an empty list.
func (s *Service) Eligible(ctx context.Context, ownerID, group, weekday string) ([]roster.Student, error) {
	group = roster.NormalizeGroup(group)
	if group == "" || strings.TrimSpace(weekday) == "" {
		return []roster.Student{}, nil
	}
	day, err := roster.ParseWeekday(weekday)
	if err != nil {
		return nil, ValidationError{Field: "weekday", Message: fmt.Sprintf("unknown weekday %q", weekday)}
	}
	students, err := s.students.List(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	return Filter(students, group, day), nil
}

// StartDraft opens a server-held session for the selection with every row unset.
// An empty weekday means today's weekday in the service time zone.
func (s *Service) StartDraft(ctx context.Context, ownerID, group, weekday string) (Draft, error) {
	group = roster.NormalizeGroup(group)
	if group == "" {
		return Draft{}, ValidationError{Field: "group", Message: "required"}
	}
	day := roster.WeekdayOf(s.now().In(s.loc).Weekday())
	if strings.TrimSpace(weekday) != "" {
		parsed, err := roster.ParseWeekday(weekday)
		if err != nil {
			return Draft{}, ValidationError{Field: "weekday", Message: fmt.Sprintf("unknown weekday %q", weekday)}
		}
		day = parsed
	}
	students, err := s.students.List(ctx, ownerID, "")
	if err != nil {
		return Draft{}, err
	}
	d := Draft{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Date:      s.Today(),
		CreatedAt: s.now().UTC(),
		Session:   *NewSession(group, day, students),
	}
	if err := s.drafts.Put(ctx, d, s.draftTTL); err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("store draft failed")
		return Draft{}, fmt.Errorf("store draft: %w", err)
	}
	return d, nil
}

// GetDraft returns a draft or ErrNotFound.
func (s *Service) GetDraft(ctx context.Context, ownerID, id string) (Draft, error) {
	d, err := s.drafts.Get(ctx, ownerID, id)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("draft", id).Msg("load draft failed")
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	if d == nil {
		return Draft{}, ErrNotFound
	}
	return *d, nil
}

// SetDraftStatus marks one row of a draft.
func (s *Service) SetDraftStatus(ctx context.Context, ownerID, id, studentID string, status Status, lateMinutes *int) (Draft, error) {
	d, err := s.GetDraft(ctx, ownerID, id)
	if err != nil {
		return Draft{}, err
	}
	if err := d.SetStatus(studentID, status, lateMinutes); err != nil {
		return Draft{}, err
	}
	if err := s.drafts.Put(ctx, d, s.draftTTL); err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("draft", id).Msg("store draft failed")
		return Draft{}, fmt.Errorf("store draft: %w", err)
	}
	return d, nil
}

// DiscardDraft drops a draft without saving.
func (s *Service) DiscardDraft(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetDraft(ctx, ownerID, id); err != nil {
		return err
	}
	return s.drafts.Delete(ctx, ownerID, id)
}

// SaveDraft saves a draft for today. The draft is dropped on success and when
// the guard rejects it; rejected data is not kept for a retry.
func (s *Service) SaveDraft(ctx context.Context, ownerID, id string) (Snapshot, error) {
	d, err := s.GetDraft(ctx, ownerID, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.Save(ctx, ownerID, SaveInput{
		Group:    d.Group,
		Weekday:  string(d.Weekday),
		Students: d.Rows,
	})
	var locked *LockedError
	if err == nil || errors.As(err, &locked) {
		if derr := s.drafts.Delete(ctx, ownerID, id); derr != nil {
			s.log.Warn().Err(derr).Str("draft", id).Msg("drop draft failed")
		}
	}
	return snap, err
}

// SaveInput is a completed session submitted for saving.
type SaveInput struct {
	Group    string `json:"group"`
	Weekday  string `json:"weekday"`
	Date     string `json:"date"`
	Students []Row  `json:"students"`
}

// Save persists a snapshot unless the guard has the group and date locked, in
// which case a *LockedError carrying the remaining wait is returned.
func (s *Service) Save(ctx context.Context, ownerID string, in SaveInput) (Snapshot, error) {
	snap, err := s.buildSnapshot(ownerID, in)
	if err != nil {
		return Snapshot{}, err
	}

	release, err := s.claims.Claim(ctx, lockKey(ownerID, snap.Group, snap.Date), claimTTL)
	if err != nil {
		if errors.Is(err, ErrSaveInProgress) {
			s.metrics.SaveRejected.WithLabelValues("in_progress").Inc()
			return Snapshot{}, err
		}
		s.log.Error().Err(err).Str("owner", ownerID).Msg("claim save failed")
		return Snapshot{}, fmt.Errorf("claim save: %w", err)
	}
	defer release()

	latest, err := s.history.Latest(ctx, ownerID, snap.Group, snap.Date)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("group", snap.Group).Msg("load latest snapshot failed")
		return Snapshot{}, fmt.Errorf("load latest snapshot: %w", err)
	}
	if until, locked := s.guard.LockedUntil(latest); locked {
		s.metrics.SaveRejected.WithLabelValues("locked").Inc()
		return Snapshot{}, &LockedError{
			Group:     snap.Group,
			Date:      snap.Date,
			Until:     until,
			Remaining: *s.guard.Remaining(latest),
		}
	}

	snap.ID = uuid.NewString()
	snap.CreatedAt = s.now().UTC()
	if err := s.history.Create(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("group", snap.Group).Msg("save snapshot failed")
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.metrics.SnapshotsSaved.Inc()
	for _, r := range snap.Students {
		s.metrics.RowsRecorded.WithLabelValues(string(r.Status)).Inc()
	}
	s.log.Info().Str("owner", ownerID).Str("snapshot", snap.ID).Str("group", snap.Group).
		Str("date", snap.Date).Int("rows", len(snap.Students)).Msg("attendance saved")
	s.publishSaved(ctx, snap)
	return snap, nil
}

func (s *Service) buildSnapshot(ownerID string, in SaveInput) (Snapshot, error) {
	group := roster.NormalizeGroup(in.Group)
	if group == "" || strings.TrimSpace(in.Weekday) == "" || len(in.Students) == 0 {
		return Snapshot{}, ErrEmptySession
	}
	day, err := roster.ParseWeekday(in.Weekday)
	if err != nil {
		return Snapshot{}, ValidationError{Field: "weekday", Message: fmt.Sprintf("unknown weekday %q", in.Weekday)}
	}
	date := s.Today()
	if strings.TrimSpace(in.Date) != "" {
		if date, err = parseDate("date", in.Date); err != nil {
			return Snapshot{}, err
		}
	}
	rows := make([]Row, len(in.Students))
	for i, r := range in.Students {
		if strings.TrimSpace(r.StudentID) == "" || strings.TrimSpace(r.FullName) == "" {
			return Snapshot{}, ValidationError{Field: fmt.Sprintf("students[%d]", i), Message: "id and full_name required"}
		}
		status, err := ParseStatus(string(r.Status))
		if err != nil {
			return Snapshot{}, err
		}
		if r.LateMinutes != nil && *r.LateMinutes < 0 {
			return Snapshot{}, ValidationError{Field: fmt.Sprintf("students[%d].late_minutes", i), Message: "must not be negative"}
		}
		row := Row{StudentID: r.StudentID, FullName: r.FullName, Group: r.Group}
		if row.Group == "" {
			row.Group = group
		}
		row.mark(status, r.LateMinutes)
		rows[i] = row
	}
	return Snapshot{OwnerID: ownerID, Group: group, Weekday: day, Date: date, Students: rows}, nil
}

// List returns the owner's snapshots, most recent first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Snapshot, error) {
	snaps, err := s.history.List(ctx, ownerID)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("list snapshots failed")
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Get returns one snapshot or ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Snapshot, error) {
	snap, err := s.history.Get(ctx, ownerID, id)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("snapshot", id).Msg("get snapshot failed")
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	if snap == nil {
		return Snapshot{}, ErrNotFound
	}
	return *snap, nil
}

// Delete removes one snapshot. Unknown ids return ErrNotFound.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.history.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		s.log.Error().Err(err).Str("owner", ownerID).Str("snapshot", id).Msg("delete snapshot failed")
		return fmt.Errorf("delete snapshot: %w", err)
	}
	s.metrics.SnapshotsDeleted.Inc()
	s.log.Info().Str("owner", ownerID).Str("snapshot", id).Msg("snapshot deleted")
	return nil
}

// EditStudent replaces one row's status inside a saved snapshot and writes
// the whole document back.
func (s *Service) EditStudent(ctx context.Context, ownerID, snapshotID, studentID string, status Status, lateMinutes *int) (Snapshot, error) {
	if lateMinutes != nil && *lateMinutes < 0 {
		return Snapshot{}, ValidationError{Field: "late_minutes", Message: "must not be negative"}
	}
	snap, err := s.Get(ctx, ownerID, snapshotID)
	if err != nil {
		return Snapshot{}, err
	}
	found := false
	for i := range snap.Students {
		if snap.Students[i].StudentID == studentID {
			snap.Students[i].mark(status, lateMinutes)
			found = true
			break
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	if err := s.history.Replace(ctx, snap); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		s.log.Error().Err(err).Str("owner", ownerID).Str("snapshot", snapshotID).Msg("rewrite snapshot failed")
		return Snapshot{}, fmt.Errorf("rewrite snapshot: %w", err)
	}
	s.metrics.SnapshotsEdited.Inc()
	return snap, nil
}

// ClearResult reports the outcome of a bulk clear.
type ClearResult struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// ClearOlderThan deletes every snapshot dated at or before threshold. A failed
// delete is counted and logged and the rest still proceed.
func (s *Service) ClearOlderThan(ctx context.Context, ownerID, threshold string) (ClearResult, error) {
	date, err := parseDate("before", threshold)
	if err != nil {
		return ClearResult{}, err
	}
	snaps, err := s.history.ListOnOrBefore(ctx, ownerID, date)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("list snapshots for clear failed")
		return ClearResult{}, fmt.Errorf("list snapshots: %w", err)
	}
	var res ClearResult
	for _, snap := range snaps {
		if err := s.history.Delete(ctx, ownerID, snap.ID); err != nil {
			res.Failed++
			s.log.Warn().Err(err).Str("owner", ownerID).Str("snapshot", snap.ID).Msg("clear snapshot failed")
			continue
		}
		res.Removed++
	}
	s.metrics.RetentionRemoved.Add(float64(res.Removed))
	s.metrics.RetentionFailed.Add(float64(res.Failed))
	s.log.Info().Str("owner", ownerID).Str("before", date).Int("removed", res.Removed).
		Int("failed", res.Failed).Msg("old snapshots cleared")
	return res, nil
}

// LockState is the guard's view of one group and date.
type LockState struct {
	Group     string     `json:"group"`
	Date      string     `json:"date"`
	Locked    bool       `json:"locked"`
	Until     *time.Time `json:"until,omitempty"`
	Remaining *Remaining `json:"remaining"`
}

// CheckLock reads the latest snapshot for group and date and reports whether a
// save would be rejected. An empty date means today.
func (s *Service) CheckLock(ctx context.Context, ownerID, group, date string) (LockState, error) {
	group = roster.NormalizeGroup(group)
	if group == "" {
		return LockState{}, ValidationError{Field: "group", Message: "required"}
	}
	if strings.TrimSpace(date) == "" {
		date = s.Today()
	} else {
		var err error
		if date, err = parseDate("date", date); err != nil {
			return LockState{}, err
		}
	}
	latest, err := s.history.Latest(ctx, ownerID, group, date)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("group", group).Msg("load latest snapshot failed")
		return LockState{}, fmt.Errorf("load latest snapshot: %w", err)
	}
	state := LockState{Group: group, Date: date}
	if until, locked := s.guard.LockedUntil(latest); locked {
		state.Locked = true
		state.Until = &until
		state.Remaining = s.guard.Remaining(latest)
	}
	return state, nil
}

// IsLocked reports whether a save for group and date would be rejected now.
func (s *Service) IsLocked(ctx context.Context, ownerID, group, date string) (bool, error) {
	st, err := s.CheckLock(ctx, ownerID, group, date)
	return st.Locked, err
}

// RemainingTime returns the wait before group and date unlock, or nil.
func (s *Service) RemainingTime(ctx context.Context, ownerID, group, date string) (*Remaining, error) {
	st, err := s.CheckLock(ctx, ownerID, group, date)
	return st.Remaining, err
}

// ActiveLocks lists the owner's currently locked groups.
func (s *Service) ActiveLocks(ctx context.Context, ownerID string) ([]Lock, error) {
	snaps, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.guard.ActiveLocks(snaps), nil
}

// CountActiveLocks counts locks across every owner and records the gauge.
func (s *Service) CountActiveLocks(ctx context.Context) (int, error) {
	since := s.now().Add(-s.guard.Cooldown)
	snaps, err := s.history.ListCreatedSince(ctx, since)
	if err != nil {
		s.metrics.LockPollFailures.Inc()
		return 0, fmt.Errorf("list recent snapshots: %w", err)
	}
	n := len(s.guard.ActiveLocks(snaps))
	s.metrics.ActiveLocks.Set(float64(n))
	return n, nil
}

// SweepRetention clears, for every owner, snapshots dated at or before today
// minus days. It returns the totals across owners.
func (s *Service) SweepRetention(ctx context.Context, days int) (ClearResult, error) {
	var total ClearResult
	if days <= 0 {
		return total, nil
	}
	owners, err := s.history.Owners(ctx)
	if err != nil {
		return total, fmt.Errorf("list owners: %w", err)
	}
	threshold := s.now().In(s.loc).AddDate(0, 0, -days).Format(DateLayout)
	for _, owner := range owners {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := s.ClearOlderThan(ctx, owner, threshold)
		if err != nil {
			s.log.Warn().Err(err).Str("owner", owner).Msg("retention sweep failed for owner")
			continue
		}
		total.Removed += res.Removed
		total.Failed += res.Failed
	}
	return total, nil
}
