package attendance

import (
	"fmt"
	"sort"
	"time"
)

// DefaultCooldown is how long a saved snapshot blocks another save for the
// same group and date.
const DefaultCooldown = 20 * time.Hour

// Remaining is the wait left before a locked group may be saved again.
type Remaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// LockedError rejects a save while the group and date are locked.
type LockedError struct {
	Group     string
	Date      string
	Until     time.Time
	Remaining Remaining
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("attendance for group %s on %s already saved, retry in %dh %dm",
		e.Group, e.Date, e.Remaining.Hours, e.Remaining.Minutes)
}

// Lock describes an active lock.
type Lock struct {
	Group     string    `json:"group"`
	Date      string    `json:"date"`
	Until     time.Time `json:"until"`
	Remaining Remaining `json:"remaining"`
}

// Guard derives lock state from snapshot creation times. Nothing is stored, so
// a lock ends on its own once the cooldown has passed.
type Guard struct {
	Cooldown time.Duration
	Now      func() time.Time
}

// NewGuard creates a guard with the given cooldown.
func NewGuard(cooldown time.Duration) *Guard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Guard{Cooldown: cooldown, Now: time.Now}
}

// LockedUntil returns the lock expiry for the latest snapshot of a group and
// date, and whether it is still in the future.
func (g *Guard) LockedUntil(latest *Snapshot) (time.Time, bool) {
	if latest == nil {
		return time.Time{}, false
	}
	until := latest.CreatedAt.Add(g.Cooldown)
	return until, g.Now().Before(until)
}

// IsLocked reports whether latest still blocks a new save.
func (g *Guard) IsLocked(latest *Snapshot) bool {
	_, locked := g.LockedUntil(latest)
	return locked
}

// Remaining returns the wait left, or nil when unlocked.
func (g *Guard) Remaining(latest *Snapshot) *Remaining {
	until, locked := g.LockedUntil(latest)
	if !locked {
		return nil
	}
	r := remainingUntil(until.Sub(g.Now()))
	return &r
}

// ActiveLocks returns one lock per group and date among snaps, latest expiry
// first.
func (g *Guard) ActiveLocks(snaps []Snapshot) []Lock {
	now := g.Now()
	byKey := make(map[string]Lock)
	for _, s := range snaps {
		until := s.CreatedAt.Add(g.Cooldown)
		if !now.Before(until) {
			continue
		}
		key := lockKey(s.OwnerID, s.Group, s.Date)
		if prev, ok := byKey[key]; ok && !until.After(prev.Until) {
			continue
		}
		byKey[key] = Lock{Group: s.Group, Date: s.Date, Until: until, Remaining: remainingUntil(until.Sub(now))}
	}
	locks := make([]Lock, 0, len(byKey))
	for _, l := range byKey {
		locks = append(locks, l)
	}
	sort.Slice(locks, func(i, j int) bool {
		if locks[i].Until.Equal(locks[j].Until) {
			return locks[i].Group < locks[j].Group
		}
		return locks[i].Until.After(locks[j].Until)
	})
	return locks
}

func remainingUntil(d time.Duration) Remaining {
	if d < 0 {
		d = 0
	}
	return Remaining{
		Hours:   int(d / time.Hour),
		Minutes: int((d % time.Hour) / time.Minute),
	}
}

func lockKey(ownerID, group, date string) string {
	return ownerID + ":" + group + ":" + date
}
