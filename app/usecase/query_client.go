package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
)

// StaleNever marks data that never goes stale on its own; only invalidation refreshes it.
const StaleNever time.Duration = -1

const persistTimeout = 2 * time.Second

type QueryClientConfig struct {
	// StaleTime applies to queries that leave QueryOptions.StaleTime at zero.
	StaleTime time.Duration
	// GCTime is how long an unobserved entry survives.
	GCTime    time.Duration
	Retry     RetryPolicy
	Persister repository.QueryPersister
	Bus       repository.InvalidationBus
	Logger    *zap.Logger
	Now       func() time.Time
}

func DefaultQueryClientConfig() QueryClientConfig {
	return QueryClientConfig{
		GCTime: 5 * time.Minute,
		Retry:  DefaultRetryPolicy(),
	}
}

// QueryClient is the process-wide query cache. It is safe for concurrent use.
type QueryClient struct {
	cfg    QueryClientConfig
	log    *zap.Logger
	now    func() time.Time
	origin string

	mu      sync.Mutex
	entries *ttlcache.Cache[string, *queryEntry]
	flight  singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type queryEntry struct {
	key      entity.QueryKey
	hash     string
	resource string

	data           any
	hasData        bool
	err            error
	status         entity.QueryStatus
	inflight       int
	updatedAt      time.Time
	errorUpdatedAt time.Time
	failureCount   int
	fetchCount     int
	invalidated    bool
	generation     uint64
	dataGeneration uint64
	restoreTried   bool

	fetchFn   func(context.Context) (any, error)
	staleTime time.Duration
	gcTime    time.Duration
	retry     RetryPolicy

	observers       int
	activeObservers int
	listeners       map[int]func()
	nextListener    int
}

// entryOptions is the untyped part of QueryOptions stored on an entry.
type entryOptions struct {
	fetch     func(context.Context) (any, error)
	staleTime time.Duration
	gcTime    time.Duration
	retry     *RetryPolicy
}

func NewQueryClient(cfg QueryClientConfig) *QueryClient {
	def := DefaultQueryClientConfig()
	if cfg.GCTime <= 0 {
		cfg.GCTime = def.GCTime
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.ShouldRetry == nil && cfg.Retry.BaseDelay <= 0 && cfg.Retry.MaxDelay <= 0 {
		cfg.Retry = def.Retry
	}
	cfg.Retry = cfg.Retry.withDefaults(def.Retry)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &QueryClient{
		cfg:    cfg,
		log:    cfg.Logger.Named("query"),
		now:    cfg.Now,
		origin: uuid.NewString(),
		entries: ttlcache.New(
			ttlcache.WithTTL[string, *queryEntry](cfg.GCTime),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.entries.Start()
	return c
}

// RetryPolicy is the policy queries use unless they set their own.
func (c *QueryClient) RetryPolicy() RetryPolicy {
	return c.cfg.Retry
}

// Origin identifies this client on the invalidation bus.
func (c *QueryClient) Origin() string {
	return c.origin
}

// Close stops background work. In-flight fetches are cancelled.
func (c *QueryClient) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.entries.Stop()
	})
}

func (c *QueryClient) lookup(hash string) *queryEntry {
	item := c.entries.Get(hash)
	if item == nil {
		return nil
	}
	return item.Value()
}

// ensure returns the entry for key, creating it, and applies the latest options.
// Caller holds c.mu.
func (c *QueryClient) ensureLocked(key entity.QueryKey, hash string, opts *entryOptions) *queryEntry {
	e := c.lookup(hash)
	if e == nil {
		e = &queryEntry{
			key:       key,
			hash:      hash,
			resource:  resourceOf(key),
			status:    entity.QueryStatusPending,
			staleTime: c.cfg.StaleTime,
			gcTime:    c.cfg.GCTime,
			retry:     c.cfg.Retry,
			listeners: make(map[int]func()),
		}
		c.entries.Set(hash, e, e.gcTime)
	}
	if opts == nil {
		return e
	}
	if opts.fetch != nil {
		e.fetchFn = opts.fetch
	}
	if opts.staleTime != 0 {
		e.staleTime = opts.staleTime
	}
	if opts.gcTime > 0 && opts.gcTime != e.gcTime {
		e.gcTime = opts.gcTime
		if e.observers == 0 {
			c.entries.Set(hash, e, e.gcTime)
		}
	}
	if opts.retry != nil {
		e.retry = opts.retry.withDefaults(c.cfg.Retry)
	} else {
		e.retry = c.cfg.Retry
	}
	return e
}

func resourceOf(key entity.QueryKey) string {
	if len(key) == 0 {
		return ""
	}
	if s, ok := key[0].(string); ok {
		return s
	}
	return fmt.Sprint(key[0])
}

// freshLocked reports whether e can be served without fetching. Caller holds c.mu.
func (c *QueryClient) freshLocked(e *queryEntry) bool {
	if !e.hasData || e.invalidated {
		return false
	}
	if e.staleTime < 0 {
		return true
	}
	return c.now().Sub(e.updatedAt) < e.staleTime
}

// fetch runs (or joins) the entry's fetch and waits for it or for ctx.
// API failures are recorded on the entry, not returned.
func (c *QueryClient) fetch(ctx context.Context, e *queryEntry) error {
	c.mu.Lock()
	joined := e.inflight > 0
	hasFn := e.fetchFn != nil
	c.mu.Unlock()
	if !hasFn {
		return fmt.Errorf("%w: %s", errNoFetchFn, e.hash)
	}
	if joined {
		metrics.QueryDeduplicated.Inc()
	}

	ch := c.flight.DoChan(e.hash, func() (any, error) {
		return nil, c.runFetch(ctx, e)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (c *QueryClient) runFetch(callerCtx context.Context, e *queryEntry) error {
	c.mu.Lock()
	fn, policy, gen := e.fetchFn, e.retry, e.generation
	e.inflight++
	c.mu.Unlock()
	c.notify(e)

	// The fetch is shared by every waiter, so it must outlive the caller that started it.
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(callerCtx))
	stop := context.AfterFunc(c.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	start := c.now()
	v, failures, err := policy.run(fetchCtx, fn)
	now := c.now()
	metrics.QueryFetchDuration.WithLabelValues(e.resource).Observe(now.Sub(start).Seconds())

	c.mu.Lock()
	e.inflight--
	e.fetchCount++
	superseded := gen < e.dataGeneration
	switch {
	case superseded:
		// a fetch started after a later invalidation already settled
	case err != nil:
		e.err = err
		e.status = entity.QueryStatusError
		e.failureCount = failures
		e.errorUpdatedAt = now
	default:
		e.dataGeneration = gen
		e.data = v
		e.hasData = true
		e.err = nil
		e.status = entity.QueryStatusSuccess
		e.failureCount = 0
		e.updatedAt = now
		// an invalidation that raced with this fetch keeps the entry stale
		if e.generation == gen {
			e.invalidated = false
		}
	}
	gcTime := e.gcTime
	c.mu.Unlock()

	switch {
	case err != nil:
		metrics.QueryFetchErrors.WithLabelValues(e.resource).Inc()
		c.log.Debug("query fetch failed",
			zap.String("key", e.hash),
			zap.Int("failures", failures),
			zap.Error(err))
	case !superseded:
		c.persist(e.hash, v, now, gcTime)
	}
	c.notify(e)
	return err
}

func (c *QueryClient) persist(hash string, v any, updatedAt time.Time, ttl time.Duration) {
	if c.cfg.Persister == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		metrics.PersisterErrors.WithLabelValues("marshal").Inc()
		c.log.Warn("query persist marshal failed", zap.String("key", hash), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	defer cancel()
	if err := c.cfg.Persister.Persist(ctx, hash, data, updatedAt, ttl); err != nil {
		metrics.PersisterErrors.WithLabelValues("persist").Inc()
		c.log.Warn("query persist failed", zap.String("key", hash), zap.Error(err))
	}
}

// restore loads a persisted value into an empty entry once.
func restore[T any](ctx context.Context, c *QueryClient, e *queryEntry) {
	if c.cfg.Persister == nil {
		return
	}
	c.mu.Lock()
	if e.hasData || e.restoreTried {
		c.mu.Unlock()
		return
	}
	e.restoreTried = true
	c.mu.Unlock()

	raw, updatedAt, found, err := c.cfg.Persister.Restore(ctx, e.hash)
	if err != nil {
		metrics.PersisterErrors.WithLabelValues("restore").Inc()
		c.log.Warn("query restore failed", zap.String("key", e.hash), zap.Error(err))
		return
	}
	if !found {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		metrics.PersisterErrors.WithLabelValues("unmarshal").Inc()
		c.log.Warn("query restore decode failed", zap.String("key", e.hash), zap.Error(err))
		return
	}

	c.mu.Lock()
	if !e.hasData {
		e.data = v
		e.hasData = true
		e.status = entity.QueryStatusSuccess
		e.updatedAt = updatedAt
	}
	c.mu.Unlock()
	c.notify(e)
}

func (c *QueryClient) notify(e *queryEntry) {
	c.mu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *QueryClient) addListenerLocked(e *queryEntry, fn func()) int {
	e.nextListener++
	id := e.nextListener
	e.listeners[id] = fn
	return id
}

func (c *QueryClient) attachLocked(e *queryEntry, active bool) {
	e.observers++
	if active {
		e.activeObservers++
	}
	if e.observers == 1 {
		c.entries.Set(e.hash, e, ttlcache.NoTTL)
	}
}

func (c *QueryClient) detachLocked(e *queryEntry, active bool, listenerID int) {
	delete(e.listeners, listenerID)
	if active && e.activeObservers > 0 {
		e.activeObservers--
	}
	if e.observers > 0 {
		e.observers--
	}
	if e.observers == 0 && c.lookup(e.hash) == e {
		c.entries.Set(e.hash, e, e.gcTime)
	}
}

// matchingLocked returns entries whose key starts with prefixHash. Caller holds c.mu.
func (c *QueryClient) matchingLocked(prefixHash string) []*queryEntry {
	var out []*queryEntry
	for hash, item := range c.entries.Items() {
		if entity.HashHasPrefix(hash, prefixHash) {
			out = append(out, item.Value())
		}
	}
	return out
}

// InvalidateQueries marks every entry under the given prefixes stale, drops their
// persisted copies, broadcasts the prefixes and waits for observed entries to refetch.
func (c *QueryClient) InvalidateQueries(ctx context.Context, prefixes ...entity.QueryKey) error {
	hashes := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		hashes = append(hashes, p.Hash())
	}
	return c.invalidate(ctx, hashes)
}

// ApplyInvalidation handles an invalidation received from another client and
// waits for the observed entries it hit to refetch.
func (c *QueryClient) ApplyInvalidation(ctx context.Context, inv repository.Invalidation) error {
	if !c.MarkInvalidated(inv) {
		return nil
	}
	return c.RefetchInvalidated(ctx, inv.Prefix)
}

// MarkInvalidated marks entries under a remote invalidation's prefix stale and
// notifies their observers without refetching. It reports false for
// invalidations this client published itself.
func (c *QueryClient) MarkInvalidated(inv repository.Invalidation) bool {
	if inv.Origin == c.origin {
		return false
	}
	seen, _ := c.markInvalidated([]string{inv.Prefix})
	metrics.QueryInvalidations.WithLabelValues("remote").Inc()
	c.log.Debug("remote invalidation marked",
		zap.String("origin", inv.Origin),
		zap.String("prefix", inv.Prefix),
		zap.Int("matched", len(seen)))
	return true
}

// RefetchInvalidated refetches observed entries under the prefixes that are
// still invalidated. Entries refreshed since they were marked are skipped.
func (c *QueryClient) RefetchInvalidated(ctx context.Context, prefixHashes ...string) error {
	seen := make(map[string]struct{})
	var refetch []*queryEntry
	c.mu.Lock()
	for _, prefix := range prefixHashes {
		for _, e := range c.matchingLocked(prefix) {
			if _, ok := seen[e.hash]; ok {
				continue
			}
			seen[e.hash] = struct{}{}
			if e.invalidated && e.activeObservers > 0 && e.fetchFn != nil {
				refetch = append(refetch, e)
			}
		}
	}
	c.mu.Unlock()
	return c.refetch(ctx, refetch)
}

// markInvalidated flags every entry under the prefixes and bumps its generation
// so in-flight fetches cannot overwrite the stale mark.
func (c *QueryClient) markInvalidated(prefixHashes []string) (map[string]*queryEntry, []*queryEntry) {
	seen := make(map[string]*queryEntry)
	var refetch []*queryEntry

	c.mu.Lock()
	for _, prefix := range prefixHashes {
		for _, e := range c.matchingLocked(prefix) {
			if _, ok := seen[e.hash]; ok {
				continue
			}
			seen[e.hash] = e
			e.invalidated = true
			e.generation++
			c.flight.Forget(e.hash)
			if e.activeObservers > 0 && e.fetchFn != nil {
				refetch = append(refetch, e)
			}
		}
	}
	c.mu.Unlock()

	for _, e := range seen {
		c.notify(e)
	}
	return seen, refetch
}

func (c *QueryClient) refetch(ctx context.Context, entries []*queryEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			return c.fetch(gctx, e)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refetch invalidated queries: %w", err)
	}
	return nil
}

func (c *QueryClient) invalidate(ctx context.Context, prefixHashes []string) error {
	seen, refetch := c.markInvalidated(prefixHashes)
	metrics.QueryInvalidations.WithLabelValues("local").Add(float64(len(prefixHashes)))

	var result *multierror.Error
	for _, prefix := range prefixHashes {
		if c.cfg.Persister != nil {
			if err := c.cfg.Persister.RemovePrefix(ctx, prefix); err != nil {
				metrics.PersisterErrors.WithLabelValues("remove").Inc()
				result = multierror.Append(result, fmt.Errorf("remove persisted %s: %w", prefix, err))
			}
		}
		if c.cfg.Bus != nil {
			inv := repository.Invalidation{Origin: c.origin, Prefix: prefix}
			if err := c.cfg.Bus.Publish(ctx, inv); err != nil {
				result = multierror.Append(result, fmt.Errorf("publish invalidation %s: %w", prefix, err))
			}
		}
	}

	if err := c.refetch(ctx, refetch); err != nil {
		result = multierror.Append(result, err)
	}

	c.log.Debug("queries invalidated",
		zap.Strings("prefixes", prefixHashes),
		zap.Int("matched", len(seen)),
		zap.Int("refetched", len(refetch)))
	return result.ErrorOrNil()
}

// RemoveQueries drops every entry under prefix without refetching. Observed
// entries stay registered but lose their data, so their observers keep
// receiving invalidations and refill on the next read.
func (c *QueryClient) RemoveQueries(prefix entity.QueryKey) {
	var reset []*queryEntry
	c.mu.Lock()
	for _, e := range c.matchingLocked(prefix.Hash()) {
		e.generation++
		c.flight.Forget(e.hash)
		if e.observers == 0 {
			c.entries.Delete(e.hash)
			continue
		}
		e.dataGeneration = e.generation
		e.data = nil
		e.hasData = false
		e.err = nil
		e.status = entity.QueryStatusPending
		e.failureCount = 0
		e.updatedAt = time.Time{}
		e.invalidated = false
		e.restoreTried = true
		reset = append(reset, e)
	}
	c.mu.Unlock()
	for _, e := range reset {
		c.notify(e)
	}
}

// Clear drops every entry.
func (c *QueryClient) Clear() {
	c.RemoveQueries(entity.QueryKey{})
}

// IsFresh reports whether key would be served from cache right now.
func (c *QueryClient) IsFresh(key entity.QueryKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key.Hash())
	return e != nil && c.freshLocked(e)
}

// FreshKeys lists keys that would be served from cache right now.
func (c *QueryClient) FreshKeys() []entity.QueryKey {
	var keys []entity.QueryKey
	for _, info := range c.Snapshot() {
		if info.Fresh {
			keys = append(keys, info.Key)
		}
	}
	return keys
}

// QueryInfo describes one cache entry.
type QueryInfo struct {
	Key          entity.QueryKey
	Hash         string
	Status       entity.QueryStatus
	FetchStatus  entity.FetchStatus
	Fresh        bool
	Invalidated  bool
	Observers    int
	FetchCount   int
	FailureCount int
	UpdatedAt    time.Time
	Err          error
}

// Snapshot describes every live entry, sorted by hash.
func (c *QueryClient) Snapshot() []QueryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.entries.Items()
	out := make([]QueryInfo, 0, len(items))
	for _, item := range items {
		e := item.Value()
		out = append(out, QueryInfo{
			Key:          e.key,
			Hash:         e.hash,
			Status:       e.status,
			FetchStatus:  fetchStatusOf(e),
			Fresh:        c.freshLocked(e),
			Invalidated:  e.invalidated,
			Observers:    e.observers,
			FetchCount:   e.fetchCount,
			FailureCount: e.failureCount,
			UpdatedAt:    e.updatedAt,
			Err:          e.err,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

func fetchStatusOf(e *queryEntry) entity.FetchStatus {
	if e.inflight > 0 {
		return entity.FetchStatusFetching
	}
	return entity.FetchStatusIdle
}

var errNoFetchFn = errors.New("query has no fetch function")
