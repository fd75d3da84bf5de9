package usecase

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type EmployeeQueries struct {
	c   *QueryClient
	api repository.EmployeeAPI
}

func NewEmployeeQueries(c *QueryClient, api repository.EmployeeAPI) *EmployeeQueries {
	return &EmployeeQueries{c: c, api: api}
}

func (q *EmployeeQueries) ListOptions(f entity.EmployeeFilters) QueryOptions[[]entity.Employee] {
	return QueryOptions[[]entity.Employee]{
		Key:       QueryKeys.Employees.List(f),
		StaleTime: staleEmployees,
		Fn: func(ctx context.Context) ([]entity.Employee, error) {
			return pageData(q.api.List(ctx, f))
		},
	}
}

func (q *EmployeeQueries) List(ctx context.Context, f entity.EmployeeFilters) QueryResult[[]entity.Employee] {
	return Query(ctx, q.c, q.ListOptions(f))
}

func (q *EmployeeQueries) DetailOptions(id string) QueryOptions[*entity.Employee] {
	return QueryOptions[*entity.Employee]{
		Key:       QueryKeys.Employees.Detail(id),
		StaleTime: staleEmployees,
		Enabled:   Enabled(id != ""),
		Fn: func(ctx context.Context) (*entity.Employee, error) {
			return q.api.Get(ctx, id)
		},
	}
}

func (q *EmployeeQueries) Detail(ctx context.Context, id string) QueryResult[*entity.Employee] {
	return Query(ctx, q.c, q.DetailOptions(id))
}

func (q *EmployeeQueries) VacationsOptions(employeeID string) QueryOptions[[]entity.Vacation] {
	return QueryOptions[[]entity.Vacation]{
		Key:       QueryKeys.Employees.Vacations(employeeID),
		StaleTime: staleEmployees,
		Enabled:   Enabled(employeeID != ""),
		Fn: func(ctx context.Context) ([]entity.Vacation, error) {
			return pageData(q.api.Vacations(ctx, employeeID))
		},
	}
}

func (q *EmployeeQueries) Vacations(ctx context.Context, employeeID string) QueryResult[[]entity.Vacation] {
	return Query(ctx, q.c, q.VacationsOptions(employeeID))
}

type EmployeeMutations struct {
	c   *QueryClient
	api repository.EmployeeAPI
}

func NewEmployeeMutations(c *QueryClient, api repository.EmployeeAPI) *EmployeeMutations {
	return &EmployeeMutations{c: c, api: api}
}

type VacationRequestPayload struct {
	EmployeeID string
	Input      entity.RequestVacationInput
}

type VacationApprovalPayload struct {
	EmployeeID string
	VacationID string
}

func (m *EmployeeMutations) Create() *Mutation[entity.CreateEmployeeInput, *entity.Employee] {
	return NewMutation(m.c, MutationOptions[entity.CreateEmployeeInput, *entity.Employee]{
		Fn: m.api.Create,
		Invalidates: func(entity.CreateEmployeeInput, *entity.Employee) []entity.QueryKey {
			return keys(QueryKeys.Employees.Lists())
		},
	})
}

func (m *EmployeeMutations) Update() *Mutation[UpdatePayload[entity.UpdateEmployeeInput], *entity.Employee] {
	return NewMutation(m.c, MutationOptions[UpdatePayload[entity.UpdateEmployeeInput], *entity.Employee]{
		Fn: func(ctx context.Context, p UpdatePayload[entity.UpdateEmployeeInput]) (*entity.Employee, error) {
			return m.api.Update(ctx, p.ID, p.Input)
		},
		Invalidates: func(p UpdatePayload[entity.UpdateEmployeeInput], _ *entity.Employee) []entity.QueryKey {
			return keys(QueryKeys.Employees.Lists(), QueryKeys.Employees.Detail(p.ID))
		},
	})
}

func (m *EmployeeMutations) Delete() *Mutation[string, Empty] {
	return NewMutation(m.c, MutationOptions[string, Empty]{
		Fn: func(ctx context.Context, id string) (Empty, error) {
			return Empty{}, m.api.Delete(ctx, id)
		},
		Invalidates: func(id string, _ Empty) []entity.QueryKey {
			return keys(QueryKeys.Employees.Lists(), QueryKeys.Employees.Detail(id))
		},
	})
}

func (m *EmployeeMutations) RequestVacation() *Mutation[VacationRequestPayload, *entity.Vacation] {
	return NewMutation(m.c, MutationOptions[VacationRequestPayload, *entity.Vacation]{
		Fn: func(ctx context.Context, p VacationRequestPayload) (*entity.Vacation, error) {
			return m.api.RequestVacation(ctx, p.EmployeeID, p.Input)
		},
		Invalidates: func(p VacationRequestPayload, _ *entity.Vacation) []entity.QueryKey {
			return keys(QueryKeys.Employees.Vacations(p.EmployeeID), QueryKeys.Employees.Detail(p.EmployeeID))
		},
	})
}

func (m *EmployeeMutations) ApproveVacation() *Mutation[VacationApprovalPayload, *entity.Vacation] {
	return NewMutation(m.c, MutationOptions[VacationApprovalPayload, *entity.Vacation]{
		Fn: func(ctx context.Context, p VacationApprovalPayload) (*entity.Vacation, error) {
			return m.api.ApproveVacation(ctx, p.EmployeeID, p.VacationID)
		},
		Invalidates: func(p VacationApprovalPayload, _ *entity.Vacation) []entity.QueryKey {
			return keys(QueryKeys.Employees.Vacations(p.EmployeeID), QueryKeys.Employees.Detail(p.EmployeeID))
		},
	})
}
