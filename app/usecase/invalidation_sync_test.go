package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mark47B/erp-portal/app/domain/repository"
)

// chanBus delivers whatever is pushed on in; it fails the first subscription.
type chanBus struct {
	in         chan repository.Invalidation
	subscribed atomic.Int32
	failFirst  bool
}

func (b *chanBus) Publish(ctx context.Context, inv repository.Invalidation) error {
	select {
	case b.in <- inv:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *chanBus) Subscribe(ctx context.Context, handle func(repository.Invalidation)) error {
	if b.subscribed.Add(1) == 1 && b.failFirst {
		return errors.New("connection refused")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inv := <-b.in:
			handle(inv)
		}
	}
}

func TestInvalidationSyncAppliesRemoteInvalidations(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewQueryClient(QueryClientConfig{StaleTime: time.Minute, Retry: fastRetry()})
	defer c.Close()
	bus := &chanBus{in: make(chan repository.Invalidation)}
	s := NewInvalidationSync(c, bus, zaptest.NewLogger(t))
	s.Start(context.Background())

	SetQueryData(c, QueryKeys.Teams.Lists(), "teams")
	SetQueryData(c, QueryKeys.Users.Me(), "me")

	require.NoError(t, bus.Publish(context.Background(), repository.Invalidation{Origin: c.Origin(), Prefix: QueryKeys.Teams.All().Hash()}))
	require.NoError(t, bus.Publish(context.Background(), repository.Invalidation{Origin: "node-b", Prefix: QueryKeys.Teams.All().Hash()}))
	require.Eventually(t, func() bool { return s.Applied() == 1 }, time.Second, time.Millisecond)

	assert.False(t, c.IsFresh(QueryKeys.Teams.Lists()))
	assert.True(t, c.IsFresh(QueryKeys.Users.Me()))

	s.Shutdown()
	s.Shutdown()
}

func TestInvalidationSyncResubscribes(t *testing.T) {
	c := NewQueryClient(QueryClientConfig{StaleTime: time.Minute})
	defer c.Close()
	bus := &chanBus{in: make(chan repository.Invalidation), failFirst: true}
	s := NewInvalidationSync(c, bus, nil)
	s.resubscribeDelay = 5 * time.Millisecond
	s.Start(context.Background())
	defer s.Shutdown()

	require.Eventually(t, func() bool { return bus.subscribed.Load() >= 2 }, time.Second, time.Millisecond)
	SetQueryData(c, QueryKeys.Employees.Detail("e1"), "e1")
	require.NoError(t, bus.Publish(context.Background(), repository.Invalidation{Origin: "node-b", Prefix: QueryKeys.Employees.All().Hash()}))
	require.Eventually(t, func() bool { return s.Applied() == 1 }, time.Second, time.Millisecond)
	assert.False(t, c.IsFresh(QueryKeys.Employees.Detail("e1")))
}

func TestInvalidationSyncKeepsReceivingWhileRefetching(t *testing.T) {
	c, _ := newTestClient(t, func(cfg *QueryClientConfig) { cfg.StaleTime = time.Minute })
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	obs := Observe(ctx, c, QueryOptions[string]{
		Key: QueryKeys.Teams.Lists(),
		Fn: func(ctx context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "teams", nil
			}
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-release:
				return "teams refreshed", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})
	defer obs.Close()
	require.Equal(t, "teams", obs.Result().Data)
	SetQueryData(c, QueryKeys.Users.Me(), "me")

	bus := &chanBus{in: make(chan repository.Invalidation)}
	s := NewInvalidationSync(c, bus, zaptest.NewLogger(t))
	s.Start(ctx)
	defer s.Shutdown()

	require.NoError(t, bus.Publish(ctx, repository.Invalidation{Origin: "node-b", Prefix: QueryKeys.Teams.All().Hash()}))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("observed query was not refetched")
	}
	assert.True(t, obs.Result().IsStale)

	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, bus.Publish(pctx, repository.Invalidation{Origin: "node-b", Prefix: QueryKeys.Users.All().Hash()}))
	require.Eventually(t, func() bool { return s.Applied() == 2 }, time.Second, time.Millisecond)
	assert.False(t, c.IsFresh(QueryKeys.Users.Me()))

	close(release)
	require.Eventually(t, func() bool { return obs.Result().Data == "teams refreshed" }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Refetched() >= 1 }, time.Second, time.Millisecond)
	assert.False(t, obs.Result().IsStale)
}

func TestInvalidationSyncFullInvalidation(t *testing.T) {
	c, _ := newTestClient(t, func(cfg *QueryClientConfig) { cfg.StaleTime = time.Minute })
	bus := &chanBus{in: make(chan repository.Invalidation)}
	s := NewInvalidationSync(c, bus, nil)
	s.Start(context.Background())
	defer s.Shutdown()

	SetQueryData(c, QueryKeys.Teams.Lists(), "teams")
	SetQueryData(c, QueryKeys.Users.Me(), "me")
	require.NoError(t, bus.Publish(context.Background(), repository.Invalidation{Prefix: repository.FullInvalidation}))
	require.Eventually(t, func() bool { return s.Applied() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, c.FreshKeys())
}
