package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome tells Store.Mutate what to do with the record after fn ran.
type Outcome int

const (
	// Skip leaves the stored record untouched.
	Skip Outcome = iota
	// Save writes the record and restarts its TTL.
	Save
	// SaveKeepTTL writes the record keeping the remaining TTL.
	SaveKeepTTL
	// Remove deletes the record.
	Remove
)

// MutateFunc receives the current record, nil when none exists. It may run
// more than once if the record changes concurrently.
type MutateFunc func(rec *Record) (*Record, Outcome, error)

type Store interface {
	Load(ctx context.Context, userID int64) (*Record, error)
	Mutate(ctx context.Context, userID int64, fn MutateFunc) error
	Delete(ctx context.Context, userID int64) error
}

// ErrContention is returned when a mutation kept losing optimistic
// transactions to concurrent writers.
var ErrContention = errors.New("session record contention")

const (
	keyPrefix         = "session:"
	defaultMaxRetries = 16
)

// RedisStore keeps records as JSON strings and serialises mutations of one
// key with WATCH/MULTI/EXEC.
type RedisStore struct {
	rdb        redis.UniversalClient
	ttl        time.Duration
	maxRetries int
}

type RedisOption func(*RedisStore)

// WithMaxRetries bounds the optimistic transaction attempts per mutation.
func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, ttl: ttl, maxRetries: defaultMaxRetries}
	for _, o := range opts {
		o(s)
	}
	return s
}

func Key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Load returns nil, nil when the user has no session record.
func (s *RedisStore) Load(ctx context.Context, userID int64) (*Record, error) {
	return load(ctx, s.rdb, Key(userID))
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) Mutate(ctx context.Context, userID int64, fn MutateFunc) error {
	key := Key(userID)

	txf := func(tx *redis.Tx) error {
		rec, err := load(ctx, tx, key)
		if err != nil {
			return err
		}

		next, outcome, err := fn(rec)
		if err != nil {
			return err
		}
		if outcome == Skip {
			return nil
		}

		var data []byte
		if outcome != Remove {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode session record: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch outcome {
			case Save:
				pipe.Set(ctx, key, data, s.ttl)
			case SaveKeepTTL:
				pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			case Remove:
				pipe.Del(ctx, key)
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrContention
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (*Record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	rec := newRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	if rec.Tokens == nil {
		rec.Tokens = NewTokenRing(0)
	}
	return rec, nil
}
