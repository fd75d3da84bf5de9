package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type UserQueries struct {
	c      *QueryClient
	api    repository.UserAPI
	tokens repository.TokenStore
}

func NewUserQueries(c *QueryClient, api repository.UserAPI, tokens repository.TokenStore) *UserQueries {
	return &UserQueries{c: c, api: api, tokens: tokens}
}

func (q *UserQueries) ListOptions(f entity.UserFilters) QueryOptions[[]entity.User] {
	return QueryOptions[[]entity.User]{
		Key:       QueryKeys.Users.List(f),
		StaleTime: staleUsers,
		Fn: func(ctx context.Context) ([]entity.User, error) {
			return pageData(q.api.List(ctx, f))
		},
	}
}

func (q *UserQueries) List(ctx context.Context, f entity.UserFilters) QueryResult[[]entity.User] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *UserQueries) DetailOptions(id string) QueryOptions[*entity.User] {
	return QueryOptions[*entity.User]{
		Key:       QueryKeys.Users.Detail(id),
		StaleTime: staleUsers,
		Enabled:   Enabled(id != ""),
		Fn: func(ctx context.Context) (*entity.User, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *UserQueries) Detail(ctx context.Context, id string) QueryResult[*entity.User] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

// MeOptions reads the signed-in user; it stays idle until a token is stored.
func (q *UserQueries) MeOptions() QueryOptions[*entity.User] {
	return QueryOptions[*entity.User]{
		Key:       QueryKeys.Users.Me(),
		StaleTime: staleUsers,
		Enabled:   Enabled(hasToken(q.tokens)),
		Fn:        q.api.Me,
	}
}

func (q *UserQueries) Me(ctx context.Context) QueryResult[*entity.User] {
	return Query(ctx, q.c, q.MeOptions())
}

type UserMutations struct {
	c   *QueryClient
	api repository.UserAPI
}

func NewUserMutations(c *QueryClient, api repository.UserAPI) *UserMutations {
	return &UserMutations{c: c, api: api}
}

func (m *UserMutations) Create() *Mutation[entity.CreateUserInput, *entity.User] {
	return NewMutation(m.c, MutationOptions[entity.CreateUserInput, *entity.User]{
		Fn: m.api.Create,
		Invalidates: func(entity.CreateUserInput, *entity.User) []entity.QueryKey {
			return keys(QueryKeys.Users.Lists())
		},
	})
}

func (m *UserMutations) Update() *Mutation[UpdatePayload[entity.UpdateUserInput], *entity.User] {
	return NewMutation(m.c, MutationOptions[UpdatePayload[entity.UpdateUserInput], *entity.User]{
		Fn: func(ctx context.Context, p UpdatePayload[entity.UpdateUserInput]) (*entity.User, error) {
			return m.api.Update(ctx, p.ID, p.Input)
		},
		Invalidates: func(p UpdatePayload[entity.UpdateUserInput], _ *entity.User) []entity.QueryKey {
			return keys(QueryKeys.Users.Detail(p.ID), QueryKeys.Users.Lists(), QueryKeys.Users.Me())
		},
	})
}

func (m *UserMutations) Delete() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Delete(ctx, id)
		},
		Invalidates: func(id string, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.Users.Lists(), QueryKeys.Users.Detail(id))
		},
	})
}
