package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/roster"
)

func TestMemoryDraftStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store := NewMemoryDraftStore()
	store.now = func() time.Time { return now }

	d := Draft{ID: "d1", OwnerID: "o1", Date: "2024-01-01", Session: *NewSession("A", roster.Monday, sampleRoster())}
	require.NoError(t, store.Put(ctx, d, time.Hour))

	got, err := store.Get(ctx, "o1", "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.Rows, got.Rows)

	// stored copies are independent of the caller's value
	got.Rows[0].Status = StatusAbsent
	again, err := store.Get(ctx, "o1", "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnset, again.Rows[0].Status)

	missing, err := store.Get(ctx, "o2", "d1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now = now.Add(time.Hour)
	expired, err := store.Get(ctx, "o1", "d1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestMemoryDraftStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDraftStore()
	require.NoError(t, store.Put(ctx, Draft{ID: "d1", OwnerID: "o1"}, time.Hour))
	require.NoError(t, store.Delete(ctx, "o1", "d1"))
	got, err := store.Get(ctx, "o1", "d1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryClaimer(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClaimer()

	release, err := c.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = c.Claim(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrSaveInProgress)

	other, err := c.Claim(ctx, "k2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release, err = c.Claim(ctx, "k", time.Nanosecond)
	require.NoError(t, err)
	defer release()
	time.Sleep(time.Millisecond)
	_, err = c.Claim(ctx, "k", time.Minute)
	assert.NoError(t, err)
}
