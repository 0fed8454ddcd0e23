package attendance

import (
	"context"
	"time"

	"rollcall/internal/queue"
)

// EventSnapshotSaved is published after every successful save.
const EventSnapshotSaved = "snapshot.saved"

// SnapshotSaved is the body of an EventSnapshotSaved message.
type SnapshotSaved struct {
	SnapshotID string    `json:"snapshot_id"`
	OwnerID    string    `json:"owner_id"`
	Group      string    `json:"group"`
	Date       string    `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
	Counts     Counts    `json:"counts"`
}

// Publisher is the part of queue.Queue the service needs.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// publishSaved is best effort: a failed publish never fails the save.
func (s *Service) publishSaved(ctx context.Context, snap Snapshot) {
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(EventSnapshotSaved, SnapshotSaved{
		SnapshotID: snap.ID,
		OwnerID:    snap.OwnerID,
		Group:      snap.Group,
		Date:       snap.Date,
		CreatedAt:  snap.CreatedAt,
		Counts:     countRows(snap.Students),
	})
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("snapshot", snap.ID).Msg("publish snapshot event failed")
	}
}
