package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geotask/task-service/internal/core/domain"
)

const defaultLocationTTL = 24 * time.Hour

// saveIfNewer writes the sample only when its timestamp is strictly greater
// than the stored one. KEYS[1]=key ARGV[1]=recorded_at (unix ms)
// ARGV[2]=payload ARGV[3]=ttl (ms)
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// LocationStore keeps each user's latest sample.
// Key format: location:<user_id> -> hash{ts, data}
type LocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocationStore(client *redis.Client, ttl time.Duration) *LocationStore {
	if ttl <= 0 {
		ttl = defaultLocationTTL
	}
	return &LocationStore{client: client, ttl: ttl}
}

// SaveIfNewer runs the compare-and-set server side so concurrent writers
// from several replicas cannot move a user's position backwards.
func (s *LocationStore) SaveIfNewer(ctx context.Context, sample domain.LocationSample) (bool, error) {
	payload, err := encodeSample(sample)
	if err != nil {
		return false, err
	}
	keys := []string{locationKey(sample.UserID)}
	args := []interface{}{sample.RecordedAt.UnixMilli(), payload, s.ttl.Milliseconds()}

	n, err := saveIfNewer.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("location save: %w", err)
	}
	return n == 1, nil
}

func (s *LocationStore) Latest(ctx context.Context, userID string) (*domain.LocationSample, error) {
	data, err := s.client.HGet(ctx, locationKey(userID), "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNoLocation
		}
		return nil, fmt.Errorf("location read: %w", err)
	}
	return decodeSample(data)
}

func encodeSample(sample domain.LocationSample) (string, error) {
	b, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	return string(b), nil
}

func decodeSample(data string) (*domain.LocationSample, error) {
	var sample domain.LocationSample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("decode sample: %w", err)
	}
	return &sample, nil
}

func locationKey(userID string) string {
	return "location:" + userID
}

// TokenRevoker stores logged-out token ids until their natural expiry.
// Key format: revoked:<jti>
type TokenRevoker struct {
	client *redis.Client
}

func NewTokenRevoker(client *redis.Client) *TokenRevoker {
	return &TokenRevoker{client: client}
}

func (r *TokenRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, revokedKey(jti), strconv.FormatInt(time.Now().Unix(), 10), ttl).Err()
}

func (r *TokenRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}
