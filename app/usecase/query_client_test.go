package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		ShouldRetry: RetryTransient,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, mutate ...func(*QueryClientConfig)) (*QueryClient, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := QueryClientConfig{
		Retry: fastRetry(),
		Now:   clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c := NewQueryClient(cfg)
	t.Cleanup(c.Close)
	return c, clock
}

// counter is a query function that returns call-numbered values.
type counter struct {
	calls atomic.Int32
}

func (f *counter) fn(prefix string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := f.calls.Add(1)
		return prefix + strings.Repeat("!", int(n)), nil
	}
}

func TestQueryServesFreshDataFromCache(t *testing.T) {
	c, clock := newTestClient(t)
	var f counter
	opts := QueryOptions[string]{Key: entity.QueryKey{"teams", "list"}, Fn: f.fn("teams"), StaleTime: time.Minute}

	r := Query(context.Background(), c, opts)
	require.NoError(t, r.Err)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, "teams!", r.Data)
	assert.False(t, r.IsStale)

	clock.Advance(30 * time.Second)
	r = Query(context.Background(), c, opts)
	assert.Equal(t, "teams!", r.Data)
	assert.EqualValues(t, 1, f.calls.Load())

	clock.Advance(31 * time.Second)
	r = Query(context.Background(), c, opts)
	assert.Equal(t, "teams!!", r.Data)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestQueryWithoutStaleTimeAlwaysRefetches(t *testing.T) {
	c, _ := newTestClient(t)
	var f counter
	opts := QueryOptions[string]{Key: entity.QueryKey{"users", "list"}, Fn: f.fn("u")}

	Query(context.Background(), c, opts)
	Query(context.Background(), c, opts)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestStaleNeverKeepsDataUntilInvalidated(t *testing.T) {
	c, clock := newTestClient(t)
	var f counter
	opts := QueryOptions[string]{Key: entity.QueryKey{"subscriptions", "plans"}, Fn: f.fn("p"), StaleTime: StaleNever}

	Query(context.Background(), c, opts)
	clock.Advance(24 * time.Hour)
	Query(context.Background(), c, opts)
	assert.EqualValues(t, 1, f.calls.Load())

	require.NoError(t, c.InvalidateQueries(context.Background(), QueryKeys.Subscriptions.All()))
	r := Query(context.Background(), c, opts)
	assert.Equal(t, "p!!", r.Data)
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	c, _ := newTestClient(t)
	release := make(chan struct{})
	var calls atomic.Int32
	opts := QueryOptions[int]{
		Key:       entity.QueryKey{"employees", "list"},
		StaleTime: time.Minute,
		Fn: func(ctx context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 7, nil
		},
	}

	const readers = 8
	results := make(chan QueryResult[int], readers)
	for range readers {
		go func() {
			results <- Query(context.Background(), c, opts)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// let the remaining readers join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)

	for range readers {
		r := <-results
		require.NoError(t, r.Err)
		assert.Equal(t, 7, r.Data)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	c, _ := newTestClient(t)
	release := make(chan struct{})
	opts := QueryOptions[string]{
		Key:       entity.QueryKey{"teams", "detail", "1"},
		StaleTime: time.Minute,
		Fn: func(ctx context.Context) (string, error) {
			select {
			case <-release:
				return "ops", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan QueryResult[string])
	go func() { done <- Query(ctx, c, opts) }()
	require.Eventually(t, func() bool {
		r := Query(context.Background(), c, QueryOptions[string]{Key: opts.Key, Enabled: Enabled(false)})
		return r.FetchStatus == entity.FetchStatusFetching
	}, time.Second, time.Millisecond)

	cancel()
	r := <-done
	assert.ErrorIs(t, r.Err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return c.IsFresh(opts.Key) }, time.Second, time.Millisecond)
	data, ok := GetQueryData[string](c, opts.Key)
	assert.True(t, ok)
	assert.Equal(t, "ops", data)
}

func TestQueryRetriesTransientFailures(t *testing.T) {
	c, _ := newTestClient(t)
	var calls atomic.Int32
	opts := QueryOptions[string]{
		Key: entity.QueryKey{"facturations", "list"},
		Fn: func(context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", &entity.APIError{StatusCode: http.StatusServiceUnavailable}
			}
			return "ok", nil
		},
	}

	r := Query(context.Background(), c, opts)
	require.NoError(t, r.Err)
	assert.Equal(t, "ok", r.Data)
	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, r.FailureCount)
}

func TestQueryGivesUpAfterMaxRetries(t *testing.T) {
	c, _ := newTestClient(t)
	var calls atomic.Int32
	boom := errors.New("connection reset")
	opts := QueryOptions[string]{
		Key: entity.QueryKey{"facturations", "list"},
		Fn: func(context.Context) (string, error) {
			calls.Add(1)
			return "", boom
		},
	}

	r := Query(context.Background(), c, opts)
	assert.ErrorIs(t, r.Err, boom)
	assert.True(t, r.IsError())
	assert.False(t, r.HasData)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, 4, r.FailureCount)
}

func TestQueryDoesNotRetryClientErrors(t *testing.T) {
	c, _ := newTestClient(t)
	var calls atomic.Int32
	opts := QueryOptions[string]{
		Key: entity.QueryKey{"users", "detail", "x"},
		Fn: func(context.Context) (string, error) {
			calls.Add(1)
			return "", &entity.APIError{StatusCode: http.StatusBadRequest}
		},
	}

	r := Query(context.Background(), c, opts)
	assert.ErrorIs(t, r.Err, entity.ErrValidation)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryPerQueryRetryOverride(t *testing.T) {
	c, _ := newTestClient(t)
	var calls atomic.Int32
	opts := QueryOptions[string]{
		Key:   entity.QueryKey{"users", "list"},
		Retry: NoRetry(),
		Fn: func(context.Context) (string, error) {
			calls.Add(1)
			return "", errors.New("timeout")
		},
	}

	r := Query(context.Background(), c, opts)
	assert.Error(t, r.Err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestErrorKeepsPreviousData(t *testing.T) {
	c, _ := newTestClient(t)
	fail := atomic.Bool{}
	opts := QueryOptions[string]{
		Key:   entity.QueryKey{"teams", "list"},
		Retry: NoRetry(),
		Fn: func(context.Context) (string, error) {
			if fail.Load() {
				return "", errors.New("down")
			}
			return "cached", nil
		},
	}

	Query(context.Background(), c, opts)
	fail.Store(true)
	r := Query(context.Background(), c, opts)
	assert.True(t, r.IsError())
	assert.True(t, r.HasData)
	assert.Equal(t, "cached", r.Data)
}

func TestDisabledQueryNeverFetches(t *testing.T) {
	c, _ := newTestClient(t)
	var f counter
	opts := QueryOptions[string]{Key: entity.QueryKey{"users", "me"}, Fn: f.fn("me"), Enabled: Enabled(false)}

	r := Query(context.Background(), c, opts)
	assert.EqualValues(t, 0, f.calls.Load())
	assert.Equal(t, entity.QueryStatusPending, r.Status)
	assert.Equal(t, entity.FetchStatusIdle, r.FetchStatus)
	assert.False(t, r.IsLoading())
	assert.False(t, r.HasData)
}

func TestDisabledQueryReportsCachedData(t *testing.T) {
	c, _ := newTestClient(t)
	SetQueryData(c, entity.QueryKey{"users", "me"}, "alice")

	r := Query(context.Background(), c, QueryOptions[string]{Key: entity.QueryKey{"users", "me"}, Enabled: Enabled(false)})
	assert.True(t, r.HasData)
	assert.Equal(t, "alice", r.Data)
}

func TestInvalidateMarksOnlyMatchingEntriesStale(t *testing.T) {
	c, _ := newTestClient(t)
	var lists, detail counter
	listOpts := QueryOptions[string]{Key: QueryKeys.Facturations.List(entity.FacturationFilters{}), Fn: lists.fn("l"), StaleTime: time.Minute}
	paidOpts := QueryOptions[string]{Key: QueryKeys.Facturations.List(entity.FacturationFilters{Status: "paid"}), Fn: lists.fn("l"), StaleTime: time.Minute}
	detailOpts := QueryOptions[string]{Key: QueryKeys.Facturations.Detail("42"), Fn: detail.fn("d"), StaleTime: time.Minute}
	teamOpts := QueryOptions[string]{Key: QueryKeys.Teams.Lists(), Fn: detail.fn("t"), StaleTime: time.Minute}

	ctx := context.Background()
	Query(ctx, c, listOpts)
	Query(ctx, c, paidOpts)
	Query(ctx, c, detailOpts)
	Query(ctx, c, teamOpts)

	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Facturations.Lists()))
	assert.False(t, c.IsFresh(listOpts.Key))
	assert.False(t, c.IsFresh(paidOpts.Key))
	assert.True(t, c.IsFresh(detailOpts.Key))
	assert.True(t, c.IsFresh(teamOpts.Key))

	// unobserved entries are refetched lazily
	assert.EqualValues(t, 2, lists.calls.Load())
	Query(ctx, c, listOpts)
	assert.EqualValues(t, 3, lists.calls.Load())
	assert.True(t, c.IsFresh(listOpts.Key))
}

func TestInvalidateRefetchesObservedQueries(t *testing.T) {
	c, _ := newTestClient(t)
	var f counter
	ctx := context.Background()
	obs := Observe(ctx, c, QueryOptions[string]{Key: QueryKeys.Teams.Lists(), Fn: f.fn("teams"), StaleTime: time.Minute})
	defer obs.Close()
	assert.Equal(t, "teams!", obs.Result().Data)

	var seen []string
	var mu sync.Mutex
	unsubscribe := obs.Subscribe(func(r QueryResult[string]) {
		mu.Lock()
		seen = append(seen, string(r.FetchStatus))
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Teams.All()))
	assert.EqualValues(t, 2, f.calls.Load())
	r := obs.Result()
	assert.Equal(t, "teams!!", r.Data)
	assert.False(t, r.IsStale)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, string(entity.FetchStatusFetching))
	assert.Equal(t, string(entity.FetchStatusIdle), seen[len(seen)-1])
}

func TestDisabledObserverIsNotRefetched(t *testing.T) {
	c, _ := newTestClient(t)
	var f counter
	ctx := context.Background()
	opts := QueryOptions[string]{Key: QueryKeys.Teams.Members("t1"), Fn: f.fn("m"), StaleTime: time.Minute}
	Query(ctx, c, opts)

	opts.Enabled = Enabled(false)
	obs := Observe(ctx, c, opts)
	defer obs.Close()

	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Teams.All()))
	assert.EqualValues(t, 1, f.calls.Load())
	assert.True(t, obs.Result().IsStale)
}

func TestObserverSetOptionsFollowsKey(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	optsFor := func(id string) QueryOptions[string] {
		return QueryOptions[string]{
			Key:       QueryKeys.Teams.Members(id),
			StaleTime: time.Minute,
			Enabled:   Enabled(id != ""),
			Fn:        func(context.Context) (string, error) { return "members of " + id, nil },
		}
	}

	obs := Observe(ctx, c, optsFor(""))
	defer obs.Close()
	assert.Equal(t, entity.FetchStatusIdle, obs.Result().FetchStatus)
	assert.False(t, obs.Result().HasData)

	r := obs.SetOptions(ctx, optsFor("t1"))
	assert.Equal(t, "members of t1", r.Data)

	r = obs.SetOptions(ctx, optsFor("t2"))
	assert.Equal(t, "members of t2", r.Data)

	infos := map[string]int{}
	for _, info := range c.Snapshot() {
		infos[info.Hash] = info.Observers
	}
	assert.Equal(t, 0, infos[QueryKeys.Teams.Members("t1").Hash()])
	assert.Equal(t, 1, infos[QueryKeys.Teams.Members("t2").Hash()])
}

func TestFetchRacingInvalidationStaysStale(t *testing.T) {
	c, _ := newTestClient(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	opts := QueryOptions[string]{
		Key:       QueryKeys.Employees.Detail("e1"),
		StaleTime: time.Minute,
		Fn: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
				return "before", nil
			}
			return "after", nil
		},
	}

	ctx := context.Background()
	done := make(chan QueryResult[string])
	go func() { done <- Query(ctx, c, opts) }()
	<-started
	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Employees.All()))
	close(release)
	<-done

	assert.False(t, c.IsFresh(opts.Key))
	r := Query(ctx, c, opts)
	assert.Equal(t, "after", r.Data)
	assert.True(t, c.IsFresh(opts.Key))
}

func TestRemoveAndClear(t *testing.T) {
	c, _ := newTestClient(t)
	SetQueryData(c, QueryKeys.Teams.Detail("1"), "a")
	SetQueryData(c, QueryKeys.Users.Detail("1"), "b")

	c.RemoveQueries(QueryKeys.Teams.All())
	_, ok := GetQueryData[string](c, QueryKeys.Teams.Detail("1"))
	assert.False(t, ok)
	_, ok = GetQueryData[string](c, QueryKeys.Users.Detail("1"))
	assert.True(t, ok)

	c.Clear()
	assert.Empty(t, c.Snapshot())
}

func TestClearKeepsObservedEntriesReachable(t *testing.T) {
	c, _ := newTestClient(t)
	var f counter
	ctx := context.Background()
	obs := Observe(ctx, c, QueryOptions[string]{Key: QueryKeys.Teams.Lists(), Fn: f.fn("teams"), StaleTime: time.Minute})
	defer obs.Close()
	SetQueryData(c, QueryKeys.Users.Me(), "me")
	require.Equal(t, "teams!", obs.Result().Data)

	c.Clear()
	infos := c.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, QueryKeys.Teams.Lists().Hash(), infos[0].Hash)
	assert.Equal(t, 1, infos[0].Observers)
	r := obs.Result()
	assert.False(t, r.HasData)
	assert.Equal(t, entity.QueryStatusPending, r.Status)

	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Teams.All()))
	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, "teams!!", obs.Result().Data)
}

func TestFreshKeysAndSnapshot(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	Query(ctx, c, QueryOptions[string]{Key: QueryKeys.Teams.Lists(), StaleTime: time.Minute, Fn: func(context.Context) (string, error) { return "x", nil }})
	Query(ctx, c, QueryOptions[string]{Key: QueryKeys.Users.Lists(), StaleTime: time.Minute, Fn: func(context.Context) (string, error) { return "y", nil }})
	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Users.All()))

	fresh := c.FreshKeys()
	require.Len(t, fresh, 1)
	assert.True(t, fresh[0].Equal(QueryKeys.Teams.Lists()))

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Less(t, snap[0].Hash, snap[1].Hash)
	for _, info := range snap {
		assert.Equal(t, 1, info.FetchCount)
	}
}

type fakePersister struct {
	mu      sync.Mutex
	data    map[string][]byte
	at      map[string]time.Time
	removed []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{data: map[string][]byte{}, at: map[string]time.Time{}}
}

func (p *fakePersister) Restore(_ context.Context, hash string) ([]byte, time.Time, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.data[hash]
	return raw, p.at[hash], ok, nil
}

func (p *fakePersister) Persist(_ context.Context, hash string, data []byte, updatedAt time.Time, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[hash] = data
	p.at[hash] = updatedAt
	return nil
}

func (p *fakePersister) RemovePrefix(_ context.Context, prefixHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, prefixHash)
	for hash := range p.data {
		if entity.HashHasPrefix(hash, prefixHash) {
			delete(p.data, hash)
		}
	}
	return nil
}

func TestPersisterRestoresAndStores(t *testing.T) {
	p := newFakePersister()
	c, clock := newTestClient(t, func(cfg *QueryClientConfig) { cfg.Persister = p })
	key := QueryKeys.Subscriptions.Plans()
	p.data[key.Hash()] = []byte(`[{"id":"starter","name":"Starter"}]`)
	p.at[key.Hash()] = clock.Now()

	var calls atomic.Int32
	opts := QueryOptions[[]entity.SubscriptionPlan]{
		Key:       key,
		StaleTime: time.Minute,
		Fn: func(context.Context) ([]entity.SubscriptionPlan, error) {
			calls.Add(1)
			return []entity.SubscriptionPlan{{ID: "team", Name: "Team"}}, nil
		},
	}

	r := Query(context.Background(), c, opts)
	require.True(t, r.HasData)
	assert.Equal(t, "starter", r.Data[0].ID)
	assert.EqualValues(t, 0, calls.Load())

	clock.Advance(2 * time.Minute)
	r = Query(context.Background(), c, opts)
	assert.Equal(t, "team", r.Data[0].ID)
	assert.JSONEq(t, `[{"id":"team","name":"Team","price_cents":0,"currency":"","interval":""}]`, string(p.data[key.Hash()]))

	require.NoError(t, c.InvalidateQueries(context.Background(), QueryKeys.Subscriptions.All()))
	assert.Equal(t, []string{QueryKeys.Subscriptions.All().Hash()}, p.removed)
	assert.Empty(t, p.data)
}

type recordingBus struct {
	mu        sync.Mutex
	published []string
}

func (b *recordingBus) Publish(_ context.Context, inv repository.Invalidation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, inv.Prefix)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, _ func(repository.Invalidation)) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestLocalInvalidationIsPublishedRemoteIsNot(t *testing.T) {
	bus := &recordingBus{}
	c, _ := newTestClient(t, func(cfg *QueryClientConfig) {
		cfg.Bus = bus
		cfg.StaleTime = time.Minute
	})
	ctx := context.Background()
	SetQueryData(c, QueryKeys.Teams.Detail("1"), "ops")

	require.NoError(t, c.InvalidateQueries(ctx, QueryKeys.Teams.Lists(), QueryKeys.Teams.Detail("1")))
	assert.Equal(t, []string{QueryKeys.Teams.Lists().Hash(), QueryKeys.Teams.Detail("1").Hash()}, bus.published)

	SetQueryData(c, QueryKeys.Users.Me(), "alice")
	require.NoError(t, c.ApplyInvalidation(ctx, repository.Invalidation{Origin: "other", Prefix: QueryKeys.Users.All().Hash()}))
	assert.Len(t, bus.published, 2)
	assert.False(t, c.IsFresh(QueryKeys.Users.Me()))

	SetQueryData(c, QueryKeys.Users.Me(), "alice")
	require.NoError(t, c.ApplyInvalidation(ctx, repository.Invalidation{Origin: c.Origin(), Prefix: QueryKeys.Users.All().Hash()}))
	assert.True(t, c.IsFresh(QueryKeys.Users.Me()))
}

func TestMarkInvalidatedDefersRefetch(t *testing.T) {
	c, _ := newTestClient(t, func(cfg *QueryClientConfig) { cfg.StaleTime = time.Minute })
	var f counter
	ctx := context.Background()
	obs := Observe(ctx, c, QueryOptions[string]{Key: QueryKeys.Teams.Lists(), Fn: f.fn("teams")})
	defer obs.Close()

	inv := repository.Invalidation{Origin: "other", Prefix: QueryKeys.Teams.All().Hash()}
	assert.True(t, c.MarkInvalidated(inv))
	assert.EqualValues(t, 1, f.calls.Load())
	assert.True(t, obs.Result().IsStale)

	require.NoError(t, c.RefetchInvalidated(ctx, inv.Prefix))
	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, "teams!!", obs.Result().Data)

	require.NoError(t, c.RefetchInvalidated(ctx, inv.Prefix, repository.FullInvalidation))
	assert.EqualValues(t, 2, f.calls.Load())

	assert.False(t, c.MarkInvalidated(repository.Invalidation{Origin: c.Origin(), Prefix: inv.Prefix}))
	assert.False(t, obs.Result().IsStale)
}

func TestCloseStopsBackgroundWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewQueryClient(QueryClientConfig{Retry: fastRetry()})
	started := make(chan struct{})
	done := make(chan QueryResult[string])
	go func() {
		done <- Query(context.Background(), c, QueryOptions[string]{
			Key: entity.QueryKey{"project-tasks", "list"},
			Fn: func(ctx context.Context) (string, error) {
				close(started)
				<-ctx.Done()
				return "", ctx.Err()
			},
		})
	}()
	<-started
	c.Close()
	r := <-done
	assert.ErrorIs(t, r.Err, context.Canceled)
	c.Close()
}
