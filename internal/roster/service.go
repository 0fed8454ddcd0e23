package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements roster CRUD on top of a Repository.
type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// List returns the owner's students. A non-empty search keeps only students
// whose name, phone or group contains it, ignoring case.
func (s *Service) List(ctx context.Context, ownerID, search string) ([]Student, error) {
	students, err := s.repo.List(ctx, ownerID)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("list students failed")
		return nil, fmt.Errorf("list students: %w", err)
	}
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return students, nil
	}
	res := students[:0]
	for _, st := range students {
		if strings.Contains(strings.ToLower(st.FullName), q) ||
			strings.Contains(strings.ToLower(st.PhoneNumber), q) ||
			strings.Contains(strings.ToLower(st.Group), q) {
			res = append(res, st)
		}
	}
	return res, nil
}

// Get returns one student or ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Student, error) {
	st, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Str("student", id).Msg("get student failed")
		return Student{}, fmt.Errorf("get student: %w", err)
	}
	if st == nil {
		return Student{}, ErrNotFound
	}
	return *st, nil
}

// Create validates, normalizes and stores a new student.
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (Student, error) {
	st, err := normalize(in)
	if err != nil {
		return Student{}, err
	}
	now := s.now().UTC()
	st.ID = uuid.NewString()
	st.OwnerID = ownerID
	st.CreatedAt = now
	st.UpdatedAt = now
	if err := s.repo.Create(ctx, st); err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("create student failed")
		return Student{}, fmt.Errorf("create student: %w", err)
	}
	s.log.Info().Str("owner", ownerID).Str("student", st.ID).Str("group", st.Group).Msg("student created")
	return st, nil
}

// Update replaces the editable fields of an existing student.
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (Student, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Student{}, err
	}
	st, err := normalize(in)
	if err != nil {
		return Student{}, err
	}
	st.ID = current.ID
	st.OwnerID = ownerID
	st.CreatedAt = current.CreatedAt
	st.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Student{}, err
		}
		s.log.Error().Err(err).Str("owner", ownerID).Str("student", id).Msg("update student failed")
		return Student{}, fmt.Errorf("update student: %w", err)
	}
	return st, nil
}

// Delete removes a student. Snapshots keep their frozen copy.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		s.log.Error().Err(err).Str("owner", ownerID).Str("student", id).Msg("delete student failed")
		return fmt.Errorf("delete student: %w", err)
	}
	s.log.Info().Str("owner", ownerID).Str("student", id).Msg("student deleted")
	return nil
}

// Groups returns the distinct group labels in first-seen order.
func (s *Service) Groups(ctx context.Context, ownerID string) ([]string, error) {
	students, err := s.List(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	groups := []string{}
	for _, st := range students {
		if st.Group == "" || seen[st.Group] {
			continue
		}
		seen[st.Group] = true
		groups = append(groups, st.Group)
	}
	return groups, nil
}

// GroupWeekdays returns the weekdays of the most recently added student in
// group, so a new student's form can be prefilled. Unknown groups yield none.
func (s *Service) GroupWeekdays(ctx context.Context, ownerID, group string) ([]Weekday, error) {
	students, err := s.List(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	group = NormalizeGroup(group)
	days := []Weekday{}
	for _, st := range students {
		if st.Group == group {
			days = st.WeekDays
		}
	}
	return days, nil
}
