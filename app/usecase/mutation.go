package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/entity"
)

// MutationOptions binds a write call to the read keys it makes stale.
type MutationOptions[P, R any] struct {
	Fn func(ctx context.Context, payload P) (R, error)
	// Invalidates lists key prefixes to invalidate once Fn succeeded.
	Invalidates func(payload P, result R) []entity.QueryKey
}

// Mutation performs a pessimistic write: the cache is only touched after the
// server confirmed it, and failures are handed back untouched.
type Mutation[P, R any] struct {
	c    *QueryClient
	opts MutationOptions[P, R]

	mu     sync.Mutex
	status entity.MutationStatus
	data   R
	err    error
}

func NewMutation[P, R any](c *QueryClient, opts MutationOptions[P, R]) *Mutation[P, R] {
	return &Mutation[P, R]{c: c, opts: opts, status: entity.MutationStatusIdle}
}

func (m *Mutation[P, R]) Mutate(ctx context.Context, payload P) (R, error) {
	m.mu.Lock()
	m.status = entity.MutationStatusPending
	m.err = nil
	m.mu.Unlock()

	res, err := m.opts.Fn(ctx, payload)
	if err != nil {
		m.mu.Lock()
		m.status = entity.MutationStatusError
		m.err = err
		m.mu.Unlock()
		return res, err
	}

	if m.opts.Invalidates != nil {
		keys := m.opts.Invalidates(payload, res)
		if len(keys) > 0 {
			// refetch failures are logged, the write result stands
			if ierr := m.c.InvalidateQueries(ctx, keys...); ierr != nil {
				m.c.log.Warn("invalidation after mutation failed", zap.Error(ierr))
			}
		}
	}

	m.mu.Lock()
	m.status = entity.MutationStatusSuccess
	m.data = res
	m.mu.Unlock()
	return res, nil
}

func (m *Mutation[P, R]) Status() entity.MutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mutation[P, R]) Data() R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *Mutation[P, R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Reset returns the mutation to idle.
func (m *Mutation[P, R]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero R
	m.status = entity.MutationStatusIdle
	m.data = zero
	m.err = nil
}
