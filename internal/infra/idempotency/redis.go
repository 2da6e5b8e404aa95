package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const reserveAttempts = 3

// saveScript stores the completed record unless the key now belongs to a
// different request.
var saveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cjson.decode(cur)['fingerprint'] ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// RedisStore keeps records as JSON values that expire with their TTL.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "idem:http:"}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	rec := Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, Record{}, err
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := s.rdb.SetNX(ctx, s.prefix+key, payload, ttl).Result()
		if err != nil {
			return 0, Record{}, fmt.Errorf("idempotency reserve: %w", err)
		}
		if ok {
			return StateNew, rec, nil
		}

		existing, err := s.load(ctx, key)
		if errors.Is(err, redis.Nil) {
			// Expired or released between SETNX and GET.
			continue
		}
		if err != nil {
			return 0, Record{}, err
		}
		state, err := stateOf(existing, fingerprint)
		return state, existing, err
	}
	return 0, Record{}, fmt.Errorf("idempotency reserve: key %s kept changing", key)
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(completedRecord(fingerprint, resp, now.Add(ttl)))
	if err != nil {
		return err
	}
	ttlMillis := ttl.Milliseconds()
	if ttlMillis < 1 {
		ttlMillis = 1
	}
	saved, err := saveScript.Run(ctx, s.rdb, []string{s.prefix + key}, payload, fingerprint, ttlMillis).Int()
	if err != nil {
		return fmt.Errorf("idempotency save: %w", err)
	}
	if saved == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) load(ctx context.Context, key string) (Record, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("idempotency decode: %w", err)
	}
	return rec, nil
}
