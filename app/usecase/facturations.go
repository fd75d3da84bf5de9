package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type FacturationQueries struct {
	c   *QueryClient
	api repository.FacturationAPI
}

func NewFacturationQueries(c *QueryClient, api repository.FacturationAPI) *FacturationQueries {
	return &FacturationQueries{c: c, api: api}
}

// ListOptions keeps the whole page: invoice lists are paginated by the caller.
func (q *FacturationQueries) ListOptions(f entity.FacturationFilters) QueryOptions[entity.Page[entity.Facturation]] {
	return QueryOptions[entity.Page[entity.Facturation]]{
		Key:       QueryKeys.Facturations.List(f),
		StaleTime: staleFacturations,
		Fn: func(ctx context.Context) (entity.Page[entity.Facturation], error) {
			return q.api.List(ctx, f)
		},
	}
}

func (q *FacturationQueries) List(ctx context.Context, f entity.FacturationFilters) QueryResult[entity.Page[entity.Facturation]] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *FacturationQueries) DetailOptions(id string) QueryOptions[*entity.Facturation] {
	return QueryOptions[*entity.Facturation]{
		Key:       QueryKeys.Facturations.Detail(id),
		StaleTime: staleFacturations,
		Enabled:   Enabled(id != ""),
		Fn: func(ctx context.Context) (*entity.Facturation, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *FacturationQueries) Detail(ctx context.Context, id string) QueryResult[*entity.Facturation] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

type FacturationMutations struct {
	c   *QueryClient
	api repository.FacturationAPI
}

func NewFacturationMutations(c *QueryClient, api repository.FacturationAPI) *FacturationMutations {
	return &FacturationMutations{c: c, api: api}
}

func (m *FacturationMutations) Create() *Mutation[entity.CreateFacturationInput, *entity.Facturation] {
	return NewMutation(m.c, MutationOptions[entity.CreateFacturationInput, *entity.Facturation]{
		Fn: m.api.Create,
		Invalidates: func(entity.CreateFacturationInput, *entity.Facturation) []entity.QueryKey {
			return keys(QueryKeys.Facturations.Lists())
		},
	})
}

func (m *FacturationMutations) Update() *Mutation[UpdatePayload[entity.UpdateFacturationInput], *entity.Facturation] {
	return NewMutation(m.c, MutationOptions[UpdatePayload[entity.UpdateFacturationInput], *entity.Facturation]{
		Fn: func(ctx context.Context, p UpdatePayload[entity.UpdateFacturationInput]) (*entity.Facturation, error) {
			return m.api.Update(ctx, p.ID, p.Input)
		},
		Invalidates: func(p UpdatePayload[entity.UpdateFacturationInput], _ *entity.Facturation) []entity.QueryKey {
			return keys(QueryKeys.Facturations.Detail(p.ID), QueryKeys.Facturations.Lists())
		},
	})
}

func (m *FacturationMutations) Send() *Mutation[string, *entity.Facturation] {
	return NewMutation(m.c, MutationOptions[string, *entity.Facturation]{
		Fn: m.api.Send,
		Invalidates: func(id string, _ *entity.Facturation) []entity.QueryKey {
			return keys(QueryKeys.Facturations.Detail(id), QueryKeys.Facturations.Lists())
		},
	})
}

func (m *FacturationMutations) Delete() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Delete(ctx, id)
		},
		Invalidates: func(id string, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.Facturations.Lists(), QueryKeys.Facturations.Detail(id))
		},
	})
}
