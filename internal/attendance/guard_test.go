package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedGuard(cooldown time.Duration, now time.Time) *Guard {
	g := NewGuard(cooldown)
	g.Now = func() time.Time { return now }
	return g
}

func TestGuard_LockWindow(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	latest := &Snapshot{Group: "A", Date: "2024-01-01", CreatedAt: created}

	tests := []struct {
		name   string
		at     time.Duration
		locked bool
	}{
		{name: "at creation", at: 0, locked: true},
		{name: "mid window", at: 10 * time.Hour, locked: true},
		{name: "last nanosecond", at: 20*time.Hour - time.Nanosecond, locked: true},
		{name: "exactly at expiry", at: 20 * time.Hour, locked: false},
		{name: "after expiry", at: 21 * time.Hour, locked: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := fixedGuard(DefaultCooldown, created.Add(tt.at))
			assert.Equal(t, tt.locked, g.IsLocked(latest))
			if tt.locked {
				assert.NotNil(t, g.Remaining(latest))
			} else {
				assert.Nil(t, g.Remaining(latest))
			}
		})
	}
}

func TestGuard_NoSnapshot(t *testing.T) {
	g := fixedGuard(time.Hour, time.Now())
	assert.False(t, g.IsLocked(nil))
	assert.Nil(t, g.Remaining(nil))
}

func TestGuard_RemainingFloors(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	g := fixedGuard(DefaultCooldown, created.Add(19*time.Hour+30*time.Second))
	r := g.Remaining(&Snapshot{CreatedAt: created})
	require.NotNil(t, r)
	assert.Equal(t, Remaining{Hours: 0, Minutes: 59}, *r)
}

func TestGuard_DefaultCooldown(t *testing.T) {
	assert.Equal(t, DefaultCooldown, NewGuard(0).Cooldown)
	assert.Equal(t, 2*time.Minute, NewGuard(2*time.Minute).Cooldown)
}

func TestGuard_ActiveLocks(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	g := fixedGuard(DefaultCooldown, now)
	snaps := []Snapshot{
		{OwnerID: "o", Group: "A", Date: "2024-01-02", CreatedAt: now.Add(-time.Hour)},
		{OwnerID: "o", Group: "A", Date: "2024-01-02", CreatedAt: now.Add(-5 * time.Hour)},
		{OwnerID: "o", Group: "B", Date: "2024-01-02", CreatedAt: now.Add(-10 * time.Hour)},
		{OwnerID: "o", Group: "C", Date: "2024-01-01", CreatedAt: now.Add(-30 * time.Hour)},
	}
	locks := g.ActiveLocks(snaps)
	require.Len(t, locks, 2)
	assert.Equal(t, "A", locks[0].Group)
	assert.Equal(t, now.Add(19*time.Hour), locks[0].Until)
	assert.Equal(t, Remaining{Hours: 19}, locks[0].Remaining)
	assert.Equal(t, "B", locks[1].Group)
	assert.Equal(t, Remaining{Hours: 10}, locks[1].Remaining)
}
