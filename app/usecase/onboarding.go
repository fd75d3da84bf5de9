package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type OnboardingQueries struct {
	c      *QueryClient
	api    repository.OnboardingAPI
	tokens repository.TokenStore
}

func NewOnboardingQueries(c *QueryClient, api repository.OnboardingAPI, tokens repository.TokenStore) *OnboardingQueries {
	return &OnboardingQueries{c: c, api: api, tokens: tokens}
}

func (q *OnboardingQueries) StepsOptions() QueryOptions[[]entity.OnboardingStep] {
	return QueryOptions[[]entity.OnboardingStep]{
		Key:       QueryKeys.Onboarding.Steps(),
		StaleTime: staleOnboarding,
		Enabled:   Enabled(hasToken(q.tokens)),
		Fn: func(ctx context.Context) ([]entity.OnboardingStep, error) {
			return pageData(q.api.Steps(ctx))
		},
	}
}

func (q *OnboardingQueries) Steps(ctx context.Context) QueryResult[[]entity.OnboardingStep] {
	return Query(ctx, q.c, q.StepsOptions())
}

// ProgressOptions derives completion counts from the step list.
func (q *OnboardingQueries) ProgressOptions() QueryOptions[entity.OnboardingProgress] {
	return QueryOptions[entity.OnboardingProgress]{
		Key:       QueryKeys.Onboarding.Progress(),
		StaleTime: staleOnboarding,
		Enabled:   Enabled(hasToken(q.tokens)),
		Fn: func(ctx context.Context) (entity.OnboardingProgress, error) {
			page, err := q.api.Steps(ctx)
			if err != nil {
				return entity.OnboardingProgress{}, err
			}
			p := entity.OnboardingProgress{Total: len(page.Data)}
			for _, s := range page.Data {
				if s.Completed {
					p.Completed++
				}
			}
			return p, nil
		},
	}
}

func (q *OnboardingQueries) Progress(ctx context.Context) QueryResult[entity.OnboardingProgress] {
	return Query(ctx, q.c, q.ProgressOptions())
}

type OnboardingMutations struct {
	c   *QueryClient
	api repository.OnboardingAPI
}

func NewOnboardingMutations(c *QueryClient, api repository.OnboardingAPI) *OnboardingMutations {
	return &OnboardingMutations{c: c, api: api}
}

func (m *OnboardingMutations) CompleteStep() *Mutation[string, *entity.OnboardingStep] {
	return NewMutation(m.c, MutationOptions[string, *entity.OnboardingStep]{
		Fn: m.api.CompleteStep,
		Invalidates: func(string, *entity.OnboardingStep) []entity.QueryKey {
			return keys(QueryKeys.Onboarding.All())
		},
	})
}
