package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

// A claim can vanish between the failed insert and the read when its holder releases it.
const claimAttempts = 3

var errClaimRace = errors.New("idempotency key changed while claiming")

// IdempotencyRepository claims keys and stores responses in Postgres.
type IdempotencyRepository struct {
	db *pgxpool.Pool
}

func NewIdempotencyRepository(db *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Claim inserts a pending row for key. If the row exists, it is returned instead.
func (r *IdempotencyRepository) Claim(ctx context.Context, key, fingerprint string) (domain.IdempotencyRecord, bool, error) {
	for i := 0; i < claimAttempts; i++ {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO idempotency_keys (key_id, request_hash)
			 VALUES ($1, $2) ON CONFLICT (key_id) DO NOTHING`,
			key, fingerprint)
		if err != nil {
			return domain.IdempotencyRecord{}, false, mapError(err)
		}
		if tag.RowsAffected() == 1 {
			return domain.IdempotencyRecord{}, true, nil
		}

		var (
			rec    domain.IdempotencyRecord
			status *int
		)
		err = r.db.QueryRow(ctx,
			`SELECT request_hash, response_status, response_body FROM idempotency_keys WHERE key_id = $1`, key,
		).Scan(&rec.Fingerprint, &status, &rec.Body)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.IdempotencyRecord{}, false, err
		}
		if status == nil {
			rec.Pending = true
		} else {
			rec.Status = *status
		}
		return rec, false, nil
	}
	return domain.IdempotencyRecord{}, false, errClaimRace
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key, fingerprint string, status int, body []byte) error {
	_, err := r.db.Exec(ctx,
		`UPDATE idempotency_keys
		 SET request_hash = $2, response_status = $3, response_body = $4, completed_at = NOW()
		 WHERE key_id = $1`,
		key, fingerprint, status, body)
	return err
}

// Release deletes the row only while it is still pending.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key_id = $1 AND response_status IS NULL`, key)
	return err
}

// RedisIdempotencyStore claims keys with SETNX and keeps responses for a TTL.
type RedisIdempotencyStore struct {
	client     redis.UniversalClient
	ttl        time.Duration
	pendingTTL time.Duration
	prefix     string
}

func NewRedisIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	// a claim whose holder died expires well before the cached responses do
	pendingTTL := 5 * time.Minute
	if pendingTTL > ttl {
		pendingTTL = ttl
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, pendingTTL: pendingTTL, prefix: "idempotency:"}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key, fingerprint string) (domain.IdempotencyRecord, bool, error) {
	marker, err := json.Marshal(domain.IdempotencyRecord{Fingerprint: fingerprint, Pending: true})
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}

	for i := 0; i < claimAttempts; i++ {
		ok, err := s.client.SetNX(ctx, s.prefix+key, marker, s.pendingTTL).Result()
		if err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return domain.IdempotencyRecord{}, true, nil
		}

		raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("redis get: %w", err)
		}

		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("corrupt idempotency entry %q: %w", key, err)
		}
		return rec, false, nil
	}
	return domain.IdempotencyRecord{}, false, errClaimRace
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, fingerprint string, status int, body []byte) error {
	raw, err := json.Marshal(domain.IdempotencyRecord{Fingerprint: fingerprint, Status: status, Body: body})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err()
}

// Release deletes the key. Only the request holding the claim calls it.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
