package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

// InvitationQueries reads invitations of the signed-in account; every read
// waits for a token.
type InvitationQueries struct {
	c      *QueryClient
	api    repository.InvitationAPI
	tokens repository.TokenStore
}

func NewInvitationQueries(c *QueryClient, api repository.InvitationAPI, tokens repository.TokenStore) *InvitationQueries {
	return &InvitationQueries{c: c, api: api, tokens: tokens}
}

func (q *InvitationQueries) ListOptions(f entity.InvitationFilters) QueryOptions[[]entity.Invitation] {
	return QueryOptions[[]entity.Invitation]{
		Key:       QueryKeys.Invitations.List(f),
		StaleTime: staleInvitations,
		Enabled:   Enabled(hasToken(q.tokens)),
		Fn: func(ctx context.Context) ([]entity.Invitation, error) {
			return pageData(q.api.List(ctx, f))
		},
	}
}

func (q *InvitationQueries) List(ctx context.Context, f entity.InvitationFilters) QueryResult[[]entity.Invitation] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *InvitationQueries) DetailOptions(id string) QueryOptions[*entity.Invitation] {
	return QueryOptions[*entity.Invitation]{
		Key:       QueryKeys.Invitations.Detail(id),
		StaleTime: staleInvitations,
		Enabled:   Enabled(id != "" && hasToken(q.tokens)),
		Fn: func(ctx context.Context) (*entity.Invitation, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *InvitationQueries) Detail(ctx context.Context, id string) QueryResult[*entity.Invitation] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

type InvitationMutations struct {
	c   *QueryClient
	api repository.InvitationAPI
}

func NewInvitationMutations(c *QueryClient, api repository.InvitationAPI) *InvitationMutations {
	return &InvitationMutations{c: c, api: api}
}

func (m *InvitationMutations) Create() *Mutation[entity.CreateInvitationInput, *entity.Invitation] {
	return NewMutation(m.c, MutationOptions[entity.CreateInvitationInput, *entity.Invitation]{
		Fn: m.api.Create,
		Invalidates: func(entity.CreateInvitationInput, *entity.Invitation) []entity.QueryKey {
			return keys(QueryKeys.Invitations.Lists())
		},
	})
}

func (m *InvitationMutations) Resend() *Mutation[string, *entity.Invitation] {
	return NewMutation(m.c, MutationOptions[string, *entity.Invitation]{
		Fn: m.api.Resend,
		Invalidates: func(id string, _ *entity.Invitation) []entity.QueryKey {
			return keys(QueryKeys.Invitations.Detail(id), QueryKeys.Invitations.Lists())
		},
	})
}

func (m *InvitationMutations) Revoke() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Revoke(ctx, id)
		},
		Invalidates: func(id string, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.Invitations.Detail(id), QueryKeys.Invitations.Lists())
		},
	})
}
