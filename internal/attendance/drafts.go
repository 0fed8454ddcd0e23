package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Draft is a server-held session that has not been saved yet.
type Draft struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	Session
}

// DraftStore keeps drafts until they are saved, discarded or expire.
type DraftStore interface {
	Put(ctx context.Context, d Draft, ttl time.Duration) error
	Get(ctx context.Context, ownerID, id string) (*Draft, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// MemoryDraftStore is a map-backed DraftStore for dev mode and tests.
type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]memoryDraft
	now    func() time.Time
}

type memoryDraft struct {
	data    []byte
	expires time.Time
}

// NewMemoryDraftStore creates an empty store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[string]memoryDraft), now: time.Now}
}

func (m *MemoryDraftStore) Put(_ context.Context, d Draft, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draftKey(d.OwnerID, d.ID)] = memoryDraft{data: data, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryDraftStore) Get(_ context.Context, ownerID, id string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := draftKey(ownerID, id)
	md, ok := m.drafts[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(md.expires) {
		delete(m.drafts, key)
		return nil, nil
	}
	var d Draft
	if err := json.Unmarshal(md.data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MemoryDraftStore) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, draftKey(ownerID, id))
	return nil
}

// RedisDraftStore keeps drafts as JSON strings with a TTL so that any API
// replica can continue a draft.
type RedisDraftStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDraftStore creates a store using keys under prefix.
func NewRedisDraftStore(client *redis.Client, prefix string) *RedisDraftStore {
	if prefix == "" {
		prefix = "rollcall:draft"
	}
	return &RedisDraftStore{client: client, prefix: prefix}
}

func (s *RedisDraftStore) Put(ctx context.Context, d Draft, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+":"+draftKey(d.OwnerID, d.ID), data, ttl).Err()
}

func (s *RedisDraftStore) Get(ctx context.Context, ownerID, id string) (*Draft, error) {
	data, err := s.client.Get(ctx, s.prefix+":"+draftKey(ownerID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &d, nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, ownerID, id string) error {
	return s.client.Del(ctx, s.prefix+":"+draftKey(ownerID, id)).Err()
}

func draftKey(ownerID, id string) string {
	return ownerID + ":" + id
}
