package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/churn-radar/internal/pipeline"
)

// ErrCacheMiss is returned when a result is not (or no longer) stored.
var ErrCacheMiss = errors.New("result not found")

// ResultStore keeps full pipeline results for the API.
type ResultStore interface {
	Put(ctx context.Context, res *pipeline.Result) error
	Get(ctx context.Context, runID string) (*pipeline.Result, error)
	// ByFingerprint returns the latest result for identical inputs.
	ByFingerprint(ctx context.Context, fingerprint string) (*pipeline.Result, error)
}

// MemoryResultStore is a process-local ResultStore.
type MemoryResultStore struct {
	mu     sync.RWMutex
	byID   map[string]*pipeline.Result
	byHash map[string]string
}

// NewMemoryResultStore creates an empty store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		byID:   make(map[string]*pipeline.Result),
		byHash: make(map[string]string),
	}
}

func (s *MemoryResultStore) Put(_ context.Context, res *pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[res.RunID] = res
	s.byHash[res.Fingerprint] = res.RunID
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, runID string) (*pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.byID[runID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return res, nil
}

func (s *MemoryResultStore) ByFingerprint(ctx context.Context, fingerprint string) (*pipeline.Result, error) {
	s.mu.RLock()
	id, ok := s.byHash[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	return s.Get(ctx, id)
}

const (
	resultKeyPrefix      = "churnradar:result:"
	fingerprintKeyPrefix = "churnradar:fingerprint:"
)

// RedisResultStore stores results as JSON with a TTL.
type RedisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultStore wraps a redis client. A zero ttl keeps entries forever.
func NewRedisResultStore(client *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{client: client, ttl: ttl}
}

func (s *RedisResultStore) Put(ctx context.Context, res *pipeline.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, resultKeyPrefix+res.RunID, data, s.ttl)
	pipe.Set(ctx, fingerprintKeyPrefix+res.Fingerprint, res.RunID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing result %s: %w", res.RunID, err)
	}
	return nil
}

func (s *RedisResultStore) Get(ctx context.Context, runID string) (*pipeline.Result, error) {
	data, err := s.client.Get(ctx, resultKeyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("loading result %s: %w", runID, err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", runID, err)
	}
	return &res, nil
}

func (s *RedisResultStore) ByFingerprint(ctx context.Context, fingerprint string) (*pipeline.Result, error) {
	id, err := s.client.Get(ctx, fingerprintKeyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("loading fingerprint: %w", err)
	}
	return s.Get(ctx, id)
}
