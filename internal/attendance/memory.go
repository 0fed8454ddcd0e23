package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps snapshots in process memory. Used for dev mode and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	snaps []Snapshot

	// FailDelete, when set, is consulted before every delete.
	FailDelete func(id string) error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, cloneSnapshot(snap))
	return nil
}

func (r *MemoryRepository) List(_ context.Context, ownerID string) ([]Snapshot, error) {
	res := r.filter(func(s Snapshot) bool { return s.OwnerID == ownerID })
	sortRecentFirst(res)
	return res, nil
}

func (r *MemoryRepository) Get(_ context.Context, ownerID, id string) (*Snapshot, error) {
	res := r.filter(func(s Snapshot) bool { return s.OwnerID == ownerID && s.ID == id })
	if len(res) == 0 {
		return nil, nil
	}
	return &res[0], nil
}

func (r *MemoryRepository) Latest(_ context.Context, ownerID, group, date string) (*Snapshot, error) {
	res := r.filter(func(s Snapshot) bool {
		return s.OwnerID == ownerID && s.Group == group && s.Date == date
	})
	if len(res) == 0 {
		return nil, nil
	}
	sortRecentFirst(res)
	return &res[0], nil
}

func (r *MemoryRepository) Replace(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.snaps {
		if s.OwnerID == snap.OwnerID && s.ID == snap.ID {
			snap.CreatedAt = s.CreatedAt
			r.snaps[i] = cloneSnapshot(snap)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) Delete(_ context.Context, ownerID, id string) error {
	if r.FailDelete != nil {
		if err := r.FailDelete(id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.snaps {
		if s.OwnerID == ownerID && s.ID == id {
			r.snaps = append(r.snaps[:i], r.snaps[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) ListOnOrBefore(_ context.Context, ownerID, date string) ([]Snapshot, error) {
	return r.filter(func(s Snapshot) bool { return s.OwnerID == ownerID && s.Date <= date }), nil
}

func (r *MemoryRepository) ListCreatedSince(_ context.Context, since time.Time) ([]Snapshot, error) {
	return r.filter(func(s Snapshot) bool { return !s.CreatedAt.Before(since) }), nil
}

func (r *MemoryRepository) Owners(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var owners []string
	for _, s := range r.snaps {
		if !seen[s.OwnerID] {
			seen[s.OwnerID] = true
			owners = append(owners, s.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (r *MemoryRepository) filter(keep func(Snapshot) bool) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Snapshot
	for _, s := range r.snaps {
		if keep(s) {
			res = append(res, cloneSnapshot(s))
		}
	}
	return res
}

func sortRecentFirst(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Date != snaps[j].Date {
			return snaps[i].Date > snaps[j].Date
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}
