package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/churn-radar/internal/agent"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/distlock"
	"github.com/ignite/churn-radar/internal/service/runs"
	"github.com/ignite/churn-radar/internal/storage"
)

// DatasetLoader opens datasets by URI.
type DatasetLoader interface {
	Load(ctx context.Context, uri string) (datanorm.Table, error)
}

// LockFactory returns a fresh lock for key.
type LockFactory func(key string) distlock.DistLock

// Deps holds everything the handlers need. Loader, Copywriter and Renderer
// are optional.
type Deps struct {
	Pipeline   *pipeline.Pipeline
	Loader     DatasetLoader
	Results    storage.ResultStore
	Runs       *runs.Service
	Locks      LockFactory
	Renderer   *agent.Renderer
	Copywriter agent.Copywriter
	MaxUpload  int64
}

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline   *pipeline.Pipeline
	loader     DatasetLoader
	results    storage.ResultStore
	runs       *runs.Service
	locks      LockFactory
	renderer   *agent.Renderer
	copywriter agent.Copywriter
	maxUpload  int64
}

const defaultMaxUpload = 64 << 20

// NewHandlers creates a new handlers instance
func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		pipeline:   d.Pipeline,
		loader:     d.Loader,
		results:    d.Results,
		runs:       d.Runs,
		locks:      d.Locks,
		renderer:   d.Renderer,
		copywriter: d.Copywriter,
		maxUpload:  d.MaxUpload,
	}
	if h.results == nil {
		h.results = storage.NewMemoryResultStore()
	}
	if h.runs == nil {
		h.runs = runs.NewService(runs.NewMemoryRepository())
	}
	if h.locks == nil {
		h.locks = func(key string) distlock.DistLock { return distlock.NewLocalLock(key) }
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUpload
	}
	return h
}

// SharedLocks builds locks on Redis when available, then Postgres, then
// in-process.
func SharedLocks(redisClient *redis.Client, db *sql.DB, ttl time.Duration) LockFactory {
	return func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}
}
