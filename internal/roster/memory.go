package roster

import (
	"context"
	"sync"
)

// MemoryRepository keeps students in process memory. Used for dev mode and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	students []Student
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) List(_ context.Context, ownerID string) ([]Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Student
	for _, st := range r.students {
		if st.OwnerID == ownerID {
			res = append(res, clone(st))
		}
	}
	return res, nil
}

func (r *MemoryRepository) Get(_ context.Context, ownerID, id string) (*Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(ownerID, id); i >= 0 {
		st := clone(r.students[i])
		return &st, nil
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, st Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = append(r.students, clone(st))
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, st Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(st.OwnerID, st.ID)
	if i < 0 {
		return ErrNotFound
	}
	prev := r.students[i]
	st.CreatedAt = prev.CreatedAt
	r.students[i] = clone(st)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(ownerID, id)
	if i < 0 {
		return ErrNotFound
	}
	r.students = append(r.students[:i], r.students[i+1:]...)
	return nil
}

func (r *MemoryRepository) index(ownerID, id string) int {
	for i, st := range r.students {
		if st.OwnerID == ownerID && st.ID == id {
			return i
		}
	}
	return -1
}

func clone(st Student) Student {
	st.WeekDays = append([]Weekday(nil), st.WeekDays...)
	return st
}
