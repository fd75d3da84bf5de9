package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
)

// QueryOptions binds a cache key to the call that fills it.
type QueryOptions[T any] struct {
	Key entity.QueryKey
	Fn  func(ctx context.Context) (T, error)
	// StaleTime zero falls back to the client default; StaleNever disables ageing.
	StaleTime time.Duration
	GCTime    time.Duration
	// Enabled nil means enabled.
	Enabled *bool
	// Retry nil falls back to the client policy.
	Retry *RetryPolicy
}

func (o QueryOptions[T]) enabled() bool {
	return o.Enabled == nil || *o.Enabled
}

func (o QueryOptions[T]) entryOptions() *entryOptions {
	fn := o.Fn
	var fetch func(context.Context) (any, error)
	if fn != nil {
		fetch = func(ctx context.Context) (any, error) {
			return fn(ctx)
		}
	}
	return &entryOptions{
		fetch:     fetch,
		staleTime: o.StaleTime,
		gcTime:    o.GCTime,
		retry:     o.Retry,
	}
}

// Enabled is a helper for QueryOptions.Enabled.
func Enabled(v bool) *bool {
	return &v
}

// QueryResult is what a read hands to its caller.
type QueryResult[T any] struct {
	Key          entity.QueryKey
	Data         T
	HasData      bool
	Err          error
	Status       entity.QueryStatus
	FetchStatus  entity.FetchStatus
	IsStale      bool
	UpdatedAt    time.Time
	FailureCount int
}

func (r QueryResult[T]) IsLoading() bool {
	return r.Status == entity.QueryStatusPending && r.FetchStatus == entity.FetchStatusFetching
}

func (r QueryResult[T]) IsSuccess() bool {
	return r.Status == entity.QueryStatusSuccess
}

func (r QueryResult[T]) IsError() bool {
	return r.Status == entity.QueryStatusError
}

func idleResult[T any](key entity.QueryKey) QueryResult[T] {
	return QueryResult[T]{
		Key:         key,
		Status:      entity.QueryStatusPending,
		FetchStatus: entity.FetchStatusIdle,
		IsStale:     true,
	}
}

func snapshot[T any](c *QueryClient, e *queryEntry) QueryResult[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := QueryResult[T]{
		Key:          e.key,
		Err:          e.err,
		Status:       e.status,
		FetchStatus:  fetchStatusOf(e),
		IsStale:      !c.freshLocked(e),
		UpdatedAt:    e.updatedAt,
		FailureCount: e.failureCount,
	}
	if e.hasData {
		if v, ok := e.data.(T); ok {
			r.Data = v
			r.HasData = true
		}
	}
	return r
}

// Query reads opts.Key through the cache: fresh entries are served as they are,
// stale or missing ones are fetched, joining a fetch already in flight.
// A disabled query never fetches and reports whatever the cache holds.
func Query[T any](ctx context.Context, c *QueryClient, opts QueryOptions[T]) QueryResult[T] {
	hash := opts.Key.Hash()
	if !opts.enabled() {
		c.mu.Lock()
		e := c.lookup(hash)
		c.mu.Unlock()
		if e == nil {
			return idleResult[T](opts.Key)
		}
		return snapshot[T](c, e)
	}

	c.mu.Lock()
	e := c.ensureLocked(opts.Key, hash, opts.entryOptions())
	c.mu.Unlock()
	return read[T](ctx, c, e, false)
}

func read[T any](ctx context.Context, c *QueryClient, e *queryEntry, force bool) QueryResult[T] {
	restore[T](ctx, c, e)

	c.mu.Lock()
	fresh := c.freshLocked(e)
	c.mu.Unlock()
	if fresh && !force {
		metrics.QueryCacheHits.Inc()
		return snapshot[T](c, e)
	}

	metrics.QueryCacheMisses.Inc()
	err := c.fetch(ctx, e)
	r := snapshot[T](c, e)
	if err != nil && r.Err == nil {
		r.Err = err
	}
	return r
}

// PrefetchQuery warms the cache and reports the fetch error, if any.
func PrefetchQuery[T any](ctx context.Context, c *QueryClient, opts QueryOptions[T]) error {
	return Query(ctx, c, opts).Err
}

// GetQueryData returns cached data for key without fetching.
func GetQueryData[T any](c *QueryClient, key entity.QueryKey) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key.Hash())
	if e == nil || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// SetQueryData stores v under key as freshly fetched data.
func SetQueryData[T any](c *QueryClient, key entity.QueryKey, v T) {
	c.mu.Lock()
	e := c.ensureLocked(key, key.Hash(), nil)
	e.data = v
	e.hasData = true
	e.err = nil
	e.status = entity.QueryStatusSuccess
	e.updatedAt = c.now()
	e.invalidated = false
	e.dataGeneration = e.generation
	c.mu.Unlock()
	c.notify(e)
}

// Observer is a long-lived subscription to one query, the equivalent of a
// mounted component. Observed entries are never collected and are refetched
// when invalidated.
type Observer[T any] struct {
	c *QueryClient

	mu         sync.Mutex
	opts       QueryOptions[T]
	entry      *queryEntry
	active     bool
	listenerID int
	subs       map[int]func(QueryResult[T])
	nextSub    int
	closed     bool
}

// Observe registers an observer and performs the initial read.
func Observe[T any](ctx context.Context, c *QueryClient, opts QueryOptions[T]) *Observer[T] {
	o := &Observer[T]{c: c, subs: make(map[int]func(QueryResult[T]))}
	o.SetOptions(ctx, opts)
	return o
}

// SetOptions re-targets the observer, e.g. after its key arguments or
// enablement changed, and reads with the new options.
func (o *Observer[T]) SetOptions(ctx context.Context, opts QueryOptions[T]) QueryResult[T] {
	hash := opts.Key.Hash()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return idleResult[T](opts.Key)
	}
	o.opts = opts
	c := o.c

	c.mu.Lock()
	if o.entry != nil && (o.entry.hash != hash || o.active != opts.enabled()) {
		c.detachLocked(o.entry, o.active, o.listenerID)
		o.entry = nil
	}
	if o.entry == nil {
		o.entry = c.ensureLocked(opts.Key, hash, opts.entryOptions())
		o.active = opts.enabled()
		c.attachLocked(o.entry, o.active)
		o.listenerID = c.addListenerLocked(o.entry, o.emit)
	} else {
		c.ensureLocked(opts.Key, hash, opts.entryOptions())
	}
	e := o.entry
	c.mu.Unlock()
	o.mu.Unlock()

	if !opts.enabled() {
		return snapshot[T](c, e)
	}
	return read[T](ctx, c, e, false)
}

// Result returns the current state without fetching.
func (o *Observer[T]) Result() QueryResult[T] {
	o.mu.Lock()
	e, key := o.entry, o.opts.Key
	o.mu.Unlock()
	if e == nil {
		return idleResult[T](key)
	}
	return snapshot[T](o.c, e)
}

// Refetch fetches regardless of staleness.
func (o *Observer[T]) Refetch(ctx context.Context) QueryResult[T] {
	o.mu.Lock()
	e, key := o.entry, o.opts.Key
	o.mu.Unlock()
	if e == nil {
		return idleResult[T](key)
	}
	return read[T](ctx, o.c, e, true)
}

// Subscribe calls fn on every state change of the observed entry.
// fn runs on the goroutine that changed the entry and must not block.
func (o *Observer[T]) Subscribe(fn func(QueryResult[T])) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSub++
	id := o.nextSub
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *Observer[T]) emit() {
	o.mu.Lock()
	if o.closed || o.entry == nil {
		o.mu.Unlock()
		return
	}
	e := o.entry
	subs := make([]func(QueryResult[T]), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	r := snapshot[T](o.c, e)
	for _, fn := range subs {
		fn(r)
	}
}

// Close detaches the observer; the entry becomes collectable after its GC time.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.entry != nil {
		o.c.mu.Lock()
		o.c.detachLocked(o.entry, o.active, o.listenerID)
		o.c.mu.Unlock()
		o.entry = nil
	}
	o.subs = nil
}
