package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/repository"
)

const applyTimeout = 30 * time.Second

// InvalidationSync applies invalidations published by other portal nodes
// to the local query client. Entries are marked stale on receipt; observed
// ones are refetched by a single worker so the bus receive loop never waits
// on the upstream API.
type InvalidationSync struct {
	client *QueryClient
	bus    repository.InvalidationBus
	log    *zap.Logger

	resubscribeDelay time.Duration
	applied          atomic.Int64
	refetched        atomic.Int64

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInvalidationSync(client *QueryClient, bus repository.InvalidationBus, log *zap.Logger) *InvalidationSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvalidationSync{
		client:           client,
		bus:              bus,
		log:              log.Named("invalidation-sync"),
		resubscribeDelay: time.Second,
		pending:          make(map[string]struct{}),
		wake:             make(chan struct{}, 1),
	}
}

// Run subscribes to the bus until ctx is done, resubscribing after bus errors.
func (s *InvalidationSync) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.refetchLoop(ctx)
	}()
	defer wg.Wait()

	ticker := time.NewTicker(s.resubscribeDelay)
	defer ticker.Stop()
	for {
		err := s.bus.Subscribe(ctx, s.apply)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("invalidation bus subscription lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs the loop in the background until Shutdown.
func (s *InvalidationSync) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Run(ctx)
	}()
}

func (s *InvalidationSync) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Applied counts remote invalidations handled so far.
func (s *InvalidationSync) Applied() int64 {
	return s.applied.Load()
}

// Refetched counts prefixes whose observed entries were refetched.
func (s *InvalidationSync) Refetched() int64 {
	return s.refetched.Load()
}

func (s *InvalidationSync) apply(inv repository.Invalidation) {
	if !s.client.MarkInvalidated(inv) {
		return
	}
	s.applied.Add(1)

	s.mu.Lock()
	s.pending[inv.Prefix] = struct{}{}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *InvalidationSync) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefixes := make([]string, 0, len(s.pending))
	for p := range s.pending {
		prefixes = append(prefixes, p)
	}
	clear(s.pending)
	return prefixes
}

func (s *InvalidationSync) refetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		prefixes := s.drain()
		if len(prefixes) == 0 {
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, applyTimeout)
		err := s.client.RefetchInvalidated(rctx, prefixes...)
		cancel()
		if err != nil && ctx.Err() == nil {
			s.log.Warn("remote invalidation refetch failed",
				zap.Strings("prefixes", prefixes),
				zap.Error(err))
		}
		s.refetched.Add(int64(len(prefixes)))
	}
}
