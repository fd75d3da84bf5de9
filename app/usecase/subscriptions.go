package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type SubscriptionQueries struct {
	c      *QueryClient
	api    repository.SubscriptionAPI
	tokens repository.TokenStore
}

func NewSubscriptionQueries(c *QueryClient, api repository.SubscriptionAPI, tokens repository.TokenStore) *SubscriptionQueries {
	return &SubscriptionQueries{c: c, api: api, tokens: tokens}
}

// PlansOptions reads the plan catalogue, which rarely changes.
func (q *SubscriptionQueries) PlansOptions() QueryOptions[[]entity.SubscriptionPlan] {
	return QueryOptions[[]entity.SubscriptionPlan]{
		Key:       QueryKeys.Subscriptions.Plans(),
		StaleTime: stalePlans,
		Fn: func(ctx context.Context) ([]entity.SubscriptionPlan, error) {
			return pageData(q.api.Plans(ctx))
		},
	}
}

func (q *SubscriptionQueries) Plans(ctx context.Context) QueryResult[[]entity.SubscriptionPlan] {
	return Query(ctx, q.c, q.PlansOptions())
}

// CurrentOptions reads the account's subscription. An account without one
// answers 404; that is final and is not retried.
func (q *SubscriptionQueries) CurrentOptions() QueryOptions[*entity.Subscription] {
	retry := q.c.RetryPolicy().FinalOnNotFound()
	return QueryOptions[*entity.Subscription]{
		Key:       QueryKeys.Subscriptions.Current(),
		StaleTime: staleSubscription,
		Enabled:   Enabled(hasToken(q.tokens)),
		Retry:     &retry,
		Fn:        q.api.Current,
	}
}

func (q *SubscriptionQueries) Current(ctx context.Context) QueryResult[*entity.Subscription] {
	return Query(ctx, q.c, q.CurrentOptions())
}

type SubscriptionMutations struct {
	c   *QueryClient
	api repository.SubscriptionAPI
}

func NewSubscriptionMutations(c *QueryClient, api repository.SubscriptionAPI) *SubscriptionMutations {
	return &SubscriptionMutations{c: c, api: api}
}

func (m *SubscriptionMutations) Subscribe() *Mutation[entity.SubscribeInput, *entity.Subscription] {
	return NewMutation(m.c, MutationOptions[entity.SubscribeInput, *entity.Subscription]{
		Fn: m.api.Subscribe,
		Invalidates: func(entity.SubscribeInput, *entity.Subscription) []entity.QueryKey {
			return keys(QueryKeys.Subscriptions.Current())
		},
	})
}

func (m *SubscriptionMutations) Cancel() *Mutation[Empty, *entity.Subscription] {
	return NewMutation(m.c, MutationOptions[Empty, *entity.Subscription]{
		Fn: func(ctx context.Context, _ Empty) (*entity.Subscription, error) {
			return m.api.Cancel(ctx)
		},
		Invalidates: func(Empty, *entity.Subscription) []entity.QueryKey {
			return keys(QueryKeys.Subscriptions.Current())
		},
	})
}
