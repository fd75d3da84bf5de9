package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type ProjectTaskQueries struct {
	c   *QueryClient
	api repository.ProjectTaskAPI
}

func NewProjectTaskQueries(c *QueryClient, api repository.ProjectTaskAPI) *ProjectTaskQueries {
	return &ProjectTaskQueries{c: c, api: api}
}

func (q *ProjectTaskQueries) ListOptions(f entity.ProjectTaskFilters) QueryOptions[[]entity.ProjectTask] {
	return QueryOptions[[]entity.ProjectTask]{
		Key:       QueryKeys.ProjectTasks.List(f),
		StaleTime: staleProjectTasks,
		Fn: func(ctx context.Context) ([]entity.ProjectTask, error) {
			return pageData(q.api.List(ctx, f))
		},
	}
}

func (q *ProjectTaskQueries) List(ctx context.Context, f entity.ProjectTaskFilters) QueryResult[[]entity.ProjectTask] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *ProjectTaskQueries) DetailOptions(id string) QueryOptions[*entity.ProjectTask] {
	return QueryOptions[*entity.ProjectTask]{
		Key:       QueryKeys.ProjectTasks.Detail(id),
		StaleTime: staleProjectTasks,
		Enabled:   Enabled(id != ""),
		Fn: func(ctx context.Context) (*entity.ProjectTask, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *ProjectTaskQueries) Detail(ctx context.Context, id string) QueryResult[*entity.ProjectTask] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

type ProjectTaskMutations struct {
	c   *QueryClient
	api repository.ProjectTaskAPI
}

func NewProjectTaskMutations(c *QueryClient, api repository.ProjectTaskAPI) *ProjectTaskMutations {
	return &ProjectTaskMutations{c: c, api: api}
}

func (m *ProjectTaskMutations) Create() *Mutation[entity.CreateProjectTaskInput, *entity.ProjectTask] {
	return NewMutation(m.c, MutationOptions[entity.CreateProjectTaskInput, *entity.ProjectTask]{
		Fn: m.api.Create,
		Invalidates: func(entity.CreateProjectTaskInput, *entity.ProjectTask) []entity.QueryKey {
			return keys(QueryKeys.ProjectTasks.Lists())
		},
	})
}

func (m *ProjectTaskMutations) Update() *Mutation[UpdatePayload[entity.UpdateProjectTaskInput], *entity.ProjectTask] {
	return NewMutation(m.c, MutationOptions[UpdatePayload[entity.UpdateProjectTaskInput], *entity.ProjectTask]{
		Fn: func(ctx context.Context, p UpdatePayload[entity.UpdateProjectTaskInput]) (*entity.ProjectTask, error) {
			return m.api.Update(ctx, p.ID, p.Input)
		},
		Invalidates: func(p UpdatePayload[entity.UpdateProjectTaskInput], _ *entity.ProjectTask) []entity.QueryKey {
			return keys(QueryKeys.ProjectTasks.Lists(), QueryKeys.ProjectTasks.Detail(p.ID))
		},
	})
}

func (m *ProjectTaskMutations) Delete() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Delete(ctx, id)
		},
		Invalidates: func(id string, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.ProjectTasks.Lists(), QueryKeys.ProjectTasks.Detail(id))
		},
	})
}
