package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// maxTxRetries bounds optimistic-lock retries against concurrent writers.
const maxTxRetries = 5

// ErrTxConflict is returned when an update loses the optimistic lock repeatedly.
var ErrTxConflict = errors.New("advisory state update conflicted")

// Store persists advisory state.
type Store interface {
	// Load returns the stored state, or nil when nothing was recorded yet.
	Load(ctx context.Context) (*AdvisoryState, error)

	// Update applies fn to the stored state atomically and returns the result.
	Update(ctx context.Context, fn func(*AdvisoryState)) (*AdvisoryState, error)

	// Reset discards the stored state.
	Reset(ctx context.Context) error
}

// MemoryStore keeps advisory state in process.
type MemoryStore struct {
	mu    sync.Mutex
	state *AdvisoryState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (*AdvisoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, fn func(*AdvisoryState)) (*AdvisoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := AdvisoryState{}
	if s.state != nil {
		next = *s.state
	}
	fn(&next)
	s.state = &next
	cp := next
	return &cp, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}

// RedisStore shares advisory state across instances, msgpack-encoded under
// a single key.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a store using RedisKeyAdvisoryState.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient, key: RedisKeyAdvisoryState}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*AdvisoryState, error) {
	return s.load(ctx, s.redis)
}

func (s *RedisStore) load(ctx context.Context, r redis.Cmdable) (*AdvisoryState, error) {
	data, err := r.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get advisory state: %w", err)
	}
	return decodeState(data)
}

// Update implements Store using WATCH/MULTI so concurrent instances do not
// lose increments.
func (s *RedisStore) Update(ctx context.Context, fn func(*AdvisoryState)) (*AdvisoryState, error) {
	var result *AdvisoryState

	txf := func(tx *redis.Tx) error {
		state, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		if state == nil {
			state = &AdvisoryState{}
		}
		fn(state)

		data, err := encodeState(state)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = state
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, s.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("store advisory state in redis: %w", err)
	}
	return nil, ErrTxConflict
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete advisory state: %w", err)
	}
	return nil
}

func encodeState(state *AdvisoryState) ([]byte, error) {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode advisory state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*AdvisoryState, error) {
	var state AdvisoryState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode advisory state: %w", err)
	}
	return &state, nil
}
