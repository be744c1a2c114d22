// Package readmodel serves cached job and bid views that refresh when
// related contract events are observed.
package readmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/feed"
	"github.com/vietddude/gigwatch/internal/indexing/metrics"
)

// ErrJobNotFound is returned for job ids the contract does not know.
var ErrJobNotFound = domain.ErrJobNotFound

// DefaultTTL bounds how long a cached result is served.
const DefaultTTL = 30 * time.Second

// Reader performs the underlying contract reads.
type Reader interface {
	GetJob(ctx context.Context, jobID uint64) (*domain.Job, error)
	GetBids(ctx context.Context, jobID uint64) ([]domain.Bid, error)
	GetEmployerJobs(ctx context.Context, employer string) ([]uint64, error)
	GetWorkerJobs(ctx context.Context, worker string) ([]uint64, error)
}

// Cache keys.
func JobKey(jobID uint64) string         { return fmt.Sprintf("job:%d", jobID) }
func BidsKey(jobID uint64) string        { return fmt.Sprintf("bids:%d", jobID) }
func EmployerJobsKey(addr string) string { return "employer_jobs:" + strings.ToLower(addr) }
func WorkerJobsKey(addr string) string   { return "worker_jobs:" + strings.ToLower(addr) }

// refresher is a query with live subscribers.
type refresher interface {
	refresh(ctx context.Context)
}

// Accessors hands out read-model queries sharing one cache.
type Accessors struct {
	reader Reader
	cache  Cache
	ttl    time.Duration
	log    *slog.Logger

	mu   sync.Mutex
	live map[string]map[refresher]struct{}
}

// NewAccessors creates accessors over reader. A nil cache uses memory.
func NewAccessors(reader Reader, cache Cache, ttl time.Duration) *Accessors {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Accessors{
		reader: reader,
		cache:  cache,
		ttl:    ttl,
		log:    slog.Default().With("component", "readmodel"),
		live:   make(map[string]map[refresher]struct{}),
	}
}

// Job returns the query for one job.
func (a *Accessors) Job(jobID uint64) *Query[*domain.Job] {
	return newQuery(a, "job", JobKey(jobID), func(ctx context.Context) (*domain.Job, error) {
		return a.reader.GetJob(ctx, jobID)
	})
}

// Bids returns the query for a job's bids.
func (a *Accessors) Bids(jobID uint64) *Query[[]domain.Bid] {
	return newQuery(a, "bids", BidsKey(jobID), func(ctx context.Context) ([]domain.Bid, error) {
		return a.reader.GetBids(ctx, jobID)
	})
}

// EmployerJobs returns the query for the job ids an employer posted.
func (a *Accessors) EmployerJobs(employer string) *Query[[]uint64] {
	return newQuery(a, "employer_jobs", EmployerJobsKey(employer), func(ctx context.Context) ([]uint64, error) {
		return a.reader.GetEmployerJobs(ctx, employer)
	})
}

// WorkerJobs returns the query for the job ids a worker is assigned.
func (a *Accessors) WorkerJobs(worker string) *Query[[]uint64] {
	return newQuery(a, "worker_jobs", WorkerJobsKey(worker), func(ctx context.Context) ([]uint64, error) {
		return a.reader.GetWorkerJobs(ctx, worker)
	})
}

// AffectedKeys lists the cache keys an event makes stale.
func AffectedKeys(ev domain.DomainEvent) []string {
	switch p := ev.Payload.(type) {
	case domain.JobPosted:
		return []string{EmployerJobsKey(p.Employer)}
	case domain.BidPlaced:
		return []string{JobKey(p.JobID), BidsKey(p.JobID)}
	case domain.JobCompleted:
		return []string{JobKey(p.JobID), WorkerJobsKey(p.Worker), EmployerJobsKey(p.Employer)}
	case domain.JobCancelled:
		return []string{JobKey(p.JobID), EmployerJobsKey(p.Employer)}
	}
	return nil
}

// Observe invalidates the keys ev affects and re-runs every subscribed
// query reading them. It returns the invalidated keys.
func (a *Accessors) Observe(ctx context.Context, ev domain.DomainEvent) []string {
	keys := AffectedKeys(ev)
	if len(keys) == 0 {
		return nil
	}
	if err := a.cache.Delete(ctx, keys...); err != nil {
		a.log.Warn("cache invalidation failed", "keys", keys, "error", err)
	}

	var stale []refresher
	a.mu.Lock()
	for _, k := range keys {
		for q := range a.live[k] {
			stale = append(stale, q)
		}
	}
	a.mu.Unlock()

	for _, q := range stale {
		q.refresh(ctx)
	}
	a.log.Debug("read models invalidated", "kind", ev.Kind, "tx", ev.TransactionHash, "keys", keys, "refetched", len(stale))
	return keys
}

func (a *Accessors) track(key string, q refresher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.live[key]
	if !ok {
		set = make(map[refresher]struct{})
		a.live[key] = set
	}
	set[q] = struct{}{}
}

func (a *Accessors) untrack(key string, q refresher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live[key], q)
	if len(a.live[key]) == 0 {
		delete(a.live, key)
	}
}

// Result is one query outcome delivered to subscribers.
type Result[T any] struct {
	Value T
	Err   error
}

// Query reads one cached view.
type Query[T any] struct {
	acc   *Accessors
	name  string
	key   string
	fetch func(ctx context.Context) (T, error)

	mu   sync.Mutex
	subs feed.Notifier[Result[T]]
}

func newQuery[T any](a *Accessors, name, key string, fetch func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{acc: a, name: name, key: key, fetch: fetch}
}

// Key returns the cache key of the query.
func (q *Query[T]) Key() string { return q.key }

// Get serves from cache, falling back to the contract on a miss.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	raw, ok, err := q.acc.cache.Get(ctx, q.key)
	switch {
	case err != nil:
		metrics.ReadModelCacheTotal.WithLabelValues(q.name, "error").Inc()
		q.acc.log.Warn("cache read failed", "key", q.key, "error", err)
	case ok:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.ReadModelCacheTotal.WithLabelValues(q.name, "hit").Inc()
			return v, nil
		}
		q.acc.log.Debug("discarding undecodable cache entry", "key", q.key)
	default:
		metrics.ReadModelCacheTotal.WithLabelValues(q.name, "miss").Inc()
	}
	return q.load(ctx)
}

// Refetch bypasses the cache, stores the fresh result and notifies subscribers.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	v, err := q.load(ctx)
	q.subs.Publish(Result[T]{Value: v, Err: err})
	return v, err
}

// Subscribe registers fn for every refetch, including those triggered
// by observed events.
func (q *Query[T]) Subscribe(fn func(T, error)) (cancel func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	inner := q.subs.Subscribe(func(r Result[T]) { fn(r.Value, r.Err) })
	q.acc.track(q.key, q)

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			inner()
			if q.subs.Len() == 0 {
				q.acc.untrack(q.key, q)
			}
		})
	}
}

func (q *Query[T]) refresh(ctx context.Context) {
	if _, err := q.Refetch(ctx); err != nil {
		q.acc.log.Debug("refetch failed", "key", q.key, "error", err)
	}
}

func (q *Query[T]) load(ctx context.Context) (T, error) {
	v, err := q.fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	raw, err := json.Marshal(v)
	if err == nil {
		err = q.acc.cache.Set(ctx, q.key, raw, q.acc.ttl)
	}
	if err != nil {
		q.acc.log.Warn("cache write failed", "key", q.key, "error", err)
	}
	return v, nil
}
