package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type TeamQueries struct {
	c   *QueryClient
	api repository.TeamAPI
}

func NewTeamQueries(c *QueryClient, api repository.TeamAPI) *TeamQueries {
	return &TeamQueries{c: c, api: api}
}

func (q *TeamQueries) ListOptions(f entity.TeamFilters) QueryOptions[[]entity.Team] {
	return QueryOptions[[]entity.Team]{
		Key:       QueryKeys.Teams.List(f),
		StaleTime: staleTeams,
		Fn: func(ctx context.Context) ([]entity.Team, error) {
			return pageData(q.api.List(ctx, f))
		},
	}
}

func (q *TeamQueries) List(ctx context.Context, f entity.TeamFilters) QueryResult[[]entity.Team] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *TeamQueries) DetailOptions(id string) QueryOptions[*entity.Team] {
	return QueryOptions[*entity.Team]{
		Key:       QueryKeys.Teams.Detail(id),
		StaleTime: staleTeams,
		Enabled:   Enabled(id != ""),
		Fn: func(ctx context.Context) (*entity.Team, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *TeamQueries) Detail(ctx context.Context, id string) QueryResult[*entity.Team] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

func (q *TeamQueries) BySlugOptions(slug string) QueryOptions[*entity.Team] {
	return QueryOptions[*entity.Team]{
		Key:       QueryKeys.Teams.BySlug(slug),
		StaleTime: staleTeams,
		Enabled:   Enabled(slug != ""),
		Fn: func(ctx context.Context) (*entity.Team, error) {
			return q.api.GetBySlug(ctx, slug)
		},
	}
}

func (q *TeamQueries) BySlug(ctx context.Context, slug string) QueryResult[*entity.Team] {
	return Query(ctx, q.c, q.BySlugOptions(slug))
}

// MembersOptions is enabled only when the caller enables it and a team is selected.
func (q *TeamQueries) MembersOptions(teamID string, enabled bool) QueryOptions[[]entity.TeamMember] {
	return QueryOptions[[]entity.TeamMember]{
		Key:       QueryKeys.Teams.Members(teamID),
		StaleTime: staleTeamMembers,
		Enabled:   Enabled(enabled && teamID != ""),
		Fn: func(ctx context.Context) ([]entity.TeamMember, error) {
			return pageData(q.api.Members(ctx, teamID))
		},
	}
}

func (q *TeamQueries) Members(ctx context.Context, teamID string, enabled bool) QueryResult[[]entity.TeamMember] {
	return Query(ctx, q.c, q.MembersOptions(teamID, enabled))
}

type TeamMutations struct {
	c   *QueryClient
	api repository.TeamAPI
}

func NewTeamMutations(c *QueryClient, api repository.TeamAPI) *TeamMutations {
	return &TeamMutations{c: c, api: api}
}

// AddMemberPayload adds a user to a team.
type AddMemberPayload struct {
	TeamID string
	Input  entity.AddTeamMemberInput
}

// RemoveMemberPayload removes a user from a team.
type RemoveMemberPayload struct {
	TeamID string
	UserID string
}

func (m *TeamMutations) Create() *Mutation[entity.CreateTeamInput, *entity.Team] {
	return NewMutation(m.c, MutationOptions[entity.CreateTeamInput, *entity.Team]{
		Fn: m.api.Create,
		Invalidates: func(_ entity.CreateTeamInput, t *entity.Team) []entity.QueryKey {
			ks := keys(QueryKeys.Teams.Lists())
			if t != nil && t.Slug != "" {
				ks = append(ks, QueryKeys.Teams.BySlug(t.Slug))
			}
			return ks
		},
	})
}

// Update also invalidates the slug lookups of the old and the new slug.
// The old slug is taken from the cached detail, which is still the
// pre-update value when invalidation runs.
func (m *TeamMutations) Update() *Mutation[UpdatePayload[entity.UpdateTeamInput], *entity.Team] {
	return NewMutation(m.c, MutationOptions[UpdatePayload[entity.UpdateTeamInput], *entity.Team]{
		Fn: func(ctx context.Context, p UpdatePayload[entity.UpdateTeamInput]) (*entity.Team, error) {
			return m.api.Update(ctx, p.ID, p.Input)
		},
		Invalidates: func(p UpdatePayload[entity.UpdateTeamInput], t *entity.Team) []entity.QueryKey {
			ks := keys(QueryKeys.Teams.Detail(p.ID), QueryKeys.Teams.Lists())
			slugs := map[string]struct{}{}
			if old, ok := GetQueryData[*entity.Team](m.c, QueryKeys.Teams.Detail(p.ID)); ok && old != nil && old.Slug != "" {
				slugs[old.Slug] = struct{}{}
			}
			if p.Input.Slug != "" {
				slugs[p.Input.Slug] = struct{}{}
			}
			if t != nil && t.Slug != "" {
				slugs[t.Slug] = struct{}{}
			}
			for slug := range slugs {
				ks = append(ks, QueryKeys.Teams.BySlug(slug))
			}
			return ks
		},
	})
}

func (m *TeamMutations) Delete() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Delete(ctx, id)
		},
		Invalidates: func(string, Empty) []entity.QueryKey {
			return keys(QueryKeys.Teams.All())
		},
	})
}

func (m *TeamMutations) AddMember() *Mutation[AddMemberPayload, *entity.TeamMember] {
	return NewMutation(m.c, MutationOptions[AddMemberPayload, *entity.TeamMember]{
		Fn: func(ctx context.Context, p AddMemberPayload) (*entity.TeamMember, error) {
			return m.api.AddMember(ctx, p.TeamID, p.Input)
		},
		Invalidates: func(p AddMemberPayload, _ *entity.TeamMember) []entity.QueryKey {
			return keys(QueryKeys.Teams.Members(p.TeamID), QueryKeys.Users.Lists())
		},
	})
}

func (m *TeamMutations) RemoveMember() *Mutation[RemoveMemberPayload, Empty] {
	return NewMutation(m.c, MutationOptions[RemoveMemberPayload, Empty]{
		Fn: func(ctx context.Context, p RemoveMemberPayload) (Empty, error) {
			return Empty{}, m.api.RemoveMember(ctx, p.TeamID, p.UserID)
		},
		Invalidates: func(p RemoveMemberPayload, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.Teams.Members(p.TeamID), QueryKeys.Users.Lists())
		},
	})
}
