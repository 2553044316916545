package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/conductores/onboarding-engine/internal/model"
)

const (
	redisSessionPrefix    = "onboarding:session:"
	redisValidationPrefix = "onboarding:tanda:validation:"
	redisValidationIndex  = "onboarding:tanda:validations"
)

// RedisStore implements Store on Redis. Sessions are plain string keys;
// validations are JSON documents indexed by a sorted set scored by creation
// time in unix milliseconds.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithSessionTTL expires saved sessions after ttl. Zero keeps them forever.
func WithSessionTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.sessionTTL = ttl }
}

// NewRedis connects to the Redis instance at url (redis://host:port/db).
func NewRedis(url string, opts ...RedisOption) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	return NewRedisWithClient(redis.NewClient(ro), opts...), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op; Redis needs no schema.
func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.client.Ping(ctx).Err(), "redis: ping")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) LoadSession(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, redisSessionPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: load session %s", key)
	}
	return raw, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, key string, payload []byte) error {
	err := s.client.Set(ctx, redisSessionPrefix+key, payload, s.sessionTTL).Err()
	return eris.Wrapf(err, "redis: save session %s", key)
}

func (s *RedisStore) DeleteSession(ctx context.Context, key string) error {
	return eris.Wrapf(s.client.Del(ctx, redisSessionPrefix+key).Err(), "redis: delete session %s", key)
}

func (s *RedisStore) RecordValidation(ctx context.Context, rec *model.ValidationRecord) error {
	prepareRecord(rec, time.Now(), uuid.NewString)

	body, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "redis: marshal validation")
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisValidationPrefix+rec.ID, body, 0)
		p.ZAdd(ctx, redisValidationIndex, redis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: rec.ID})
		return nil
	})
	return eris.Wrap(err, "redis: record validation")
}

func (s *RedisStore) GetValidation(ctx context.Context, id string) (*model.ValidationRecord, error) {
	raw, err := s.client.Get(ctx, redisValidationPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, eris.Wrapf(ErrNotFound, "validation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get validation %s", id)
	}

	var rec model.ValidationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, eris.Wrapf(err, "redis: unmarshal validation %s", id)
	}
	return &rec, nil
}

// ListValidations walks the index newest first. Client and status filters
// are applied after loading, so they scan past non-matching records.
func (s *RedisStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	minScore := "-inf"
	if !filter.CreatedAfter.IsZero() {
		minScore = "(" + strconv.FormatInt(filter.CreatedAfter.UnixMilli(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, redisValidationIndex, &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list validations")
	}

	limit := filter.limit()
	var out []model.ValidationRecord
	for _, id := range ids {
		rec, err := s.GetValidation(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !filter.matches(rec) {
			continue
		}
		out = append(out, *rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
