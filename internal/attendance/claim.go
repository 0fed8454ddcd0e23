package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Claimer serializes saves on one group and date so the guard check and the
// insert cannot interleave with another save for the same key.
type Claimer interface {
	// Claim returns a release func, or ErrSaveInProgress when the key is held.
	Claim(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MemoryClaimer serializes saves within one process.
type MemoryClaimer struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewMemoryClaimer creates a claimer with no held keys.
func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{held: make(map[string]time.Time)}
}

func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if exp, ok := c.held[key]; ok && now.Before(exp) {
		return nil, ErrSaveInProgress
	}
	c.held[key] = now.Add(ttl)
	return func() {
		c.mu.Lock()
		delete(c.held, key)
		c.mu.Unlock()
	}, nil
}

// releaseScript deletes the claim only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer holds claims as SET NX keys shared by every API replica.
type RedisClaimer struct {
	client *redis.Client
	prefix string
}

// NewRedisClaimer creates a claimer using keys under prefix.
func NewRedisClaimer(client *redis.Client, prefix string) *RedisClaimer {
	if prefix == "" {
		prefix = "rollcall:claim"
	}
	return &RedisClaimer{client: client, prefix: prefix}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	rkey := c.prefix + ":" + key
	ok, err := c.client.SetNX(ctx, rkey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaveInProgress
	}
	return func() {
		// the claim expires on its own if this fails
		_ = releaseScript.Run(context.Background(), c.client, []string{rkey}, token).Err()
	}, nil
}
