package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPresenceTTL = 24 * time.Hour

// PresenceStore remembers which regions each user is inside.
// Key format: presence:<user_id> -> set of region identifiers
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceStore creates a PresenceStore wrapping the given Redis client.
// Users not seen for ttl start over as outside every region.
func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// Inside returns the identifiers of the regions the user was last inside.
func (p *PresenceStore) Inside(ctx context.Context, userID string) (map[string]bool, error) {
	members, err := p.client.SMembers(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence read: %w", err)
	}
	out := make(map[string]bool, len(members))
	for _, m := range members {
		out[m] = true
	}
	return out, nil
}

func (p *PresenceStore) Enter(ctx context.Context, userID, identifier string) error {
	key := presenceKey(userID)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, identifier)
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence enter: %w", err)
	}
	return nil
}

func (p *PresenceStore) Exit(ctx context.Context, userID, identifier string) error {
	if err := p.client.SRem(ctx, presenceKey(userID), identifier).Err(); err != nil {
		return fmt.Errorf("presence exit: %w", err)
	}
	return nil
}

func presenceKey(userID string) string {
	return "presence:" + userID
}
