package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

var ErrUnknownQuery = errors.New("unknown query")

// APIs bundles the resource clients of one ERP backend.
type APIs struct {
	Users         repository.UserAPI
	Teams         repository.TeamAPI
	Employees     repository.EmployeeAPI
	Invitations   repository.InvitationAPI
	Subscriptions repository.SubscriptionAPI
	ProjectTasks  repository.ProjectTaskAPI
	Facturations  repository.FacturationAPI
	Onboarding    repository.OnboardingAPI
}

// Portal wires every resource hook to one query client.
type Portal struct {
	Client *QueryClient

	Users         *UserQueries
	Teams         *TeamQueries
	Employees     *EmployeeQueries
	Invitations   *InvitationQueries
	Subscriptions *SubscriptionQueries
	ProjectTasks  *ProjectTaskQueries
	Facturations  *FacturationQueries
	Onboarding    *OnboardingQueries

	UserMutations         *UserMutations
	TeamMutations         *TeamMutations
	EmployeeMutations     *EmployeeMutations
	InvitationMutations   *InvitationMutations
	SubscriptionMutations *SubscriptionMutations
	ProjectTaskMutations  *ProjectTaskMutations
	FacturationMutations  *FacturationMutations
	OnboardingMutations   *OnboardingMutations
}

func NewPortal(c *QueryClient, apis APIs, tokens repository.TokenStore) *Portal {
	return &Portal{
		Client: c,

		Users:         NewUserQueries(c, apis.Users, tokens),
		Teams:         NewTeamQueries(c, apis.Teams),
		Employees:     NewEmployeeQueries(c, apis.Employees),
		Invitations:   NewInvitationQueries(c, apis.Invitations, tokens),
		Subscriptions: NewSubscriptionQueries(c, apis.Subscriptions, tokens),
		ProjectTasks:  NewProjectTaskQueries(c, apis.ProjectTasks),
		Facturations:  NewFacturationQueries(c, apis.Facturations),
		Onboarding:    NewOnboardingQueries(c, apis.Onboarding, tokens),

		UserMutations:         NewUserMutations(c, apis.Users),
		TeamMutations:         NewTeamMutations(c, apis.Teams),
		EmployeeMutations:     NewEmployeeMutations(c, apis.Employees),
		InvitationMutations:   NewInvitationMutations(c, apis.Invitations),
		SubscriptionMutations: NewSubscriptionMutations(c, apis.Subscriptions),
		ProjectTaskMutations:  NewProjectTaskMutations(c, apis.ProjectTasks),
		FacturationMutations:  NewFacturationMutations(c, apis.Facturations),
		OnboardingMutations:   NewOnboardingMutations(c, apis.Onboarding),
	}
}

// ReadRequest names one hook by resource and operation, e.g. teams/detail.
type ReadRequest struct {
	Resource string
	Op       string
	ID       string
	Filters  map[string]string
}

// ReadResult is an untyped QueryResult.
type ReadResult struct {
	Key         entity.QueryKey
	Data        any
	HasData     bool
	Status      entity.QueryStatus
	FetchStatus entity.FetchStatus
	IsStale     bool
	Err         error
}

func untyped[T any](r QueryResult[T]) ReadResult {
	out := ReadResult{
		Key:         r.Key,
		HasData:     r.HasData,
		Status:      r.Status,
		FetchStatus: r.FetchStatus,
		IsStale:     r.IsStale,
		Err:         r.Err,
	}
	if r.HasData {
		out.Data = r.Data
	}
	return out
}

// Read dispatches req to the matching hook. Filters are decoded into the
// resource's filter struct by their JSON names.
func (p *Portal) Read(ctx context.Context, req ReadRequest) (ReadResult, error) {
	switch req.Resource + "." + req.Op {
	case "users.list":
		var f entity.UserFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.Users.List(ctx, f)), nil
	case "users.detail":
		return untyped(p.Users.Detail(ctx, req.ID)), nil
	case "users.me":
		return untyped(p.Users.Me(ctx)), nil

	case "teams.list":
		var f entity.TeamFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.Teams.List(ctx, f)), nil
	case "teams.detail":
		return untyped(p.Teams.Detail(ctx, req.ID)), nil
	case "teams.slug":
		return untyped(p.Teams.BySlug(ctx, req.ID)), nil
	case "teams.members":
		return untyped(p.Teams.Members(ctx, req.ID, true)), nil

	case "employees.list":
		var f entity.EmployeeFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.Employees.List(ctx, f)), nil
	case "employees.detail":
		return untyped(p.Employees.Detail(ctx, req.ID)), nil
	case "employees.vacations":
		return untyped(p.Employees.Vacations(ctx, req.ID)), nil

	case "invitations.list":
		var f entity.InvitationFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.Invitations.List(ctx, f)), nil
	case "invitations.detail":
		return untyped(p.Invitations.Detail(ctx, req.ID)), nil

	case "subscriptions.plans":
		return untyped(p.Subscriptions.Plans(ctx)), nil
	case "subscriptions.current":
		return untyped(p.Subscriptions.Current(ctx)), nil

	case "project-tasks.list":
		var f entity.ProjectTaskFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.ProjectTasks.List(ctx, f)), nil
	case "project-tasks.detail":
		return untyped(p.ProjectTasks.Detail(ctx, req.ID)), nil

	case "facturations.list":
		var f entity.FacturationFilters
		if err := decodeFilters(req.Filters, &f); err != nil {
			return ReadResult{}, err
		}
		return untyped(p.Facturations.List(ctx, f)), nil
	case "facturations.detail":
		return untyped(p.Facturations.Detail(ctx, req.ID)), nil

	case "onboarding.steps":
		return untyped(p.Onboarding.Steps(ctx)), nil
	case "onboarding.progress":
		return untyped(p.Onboarding.Progress(ctx)), nil
	}
	return ReadResult{}, fmt.Errorf("%w: %s.%s", ErrUnknownQuery, req.Resource, req.Op)
}

func decodeFilters(in map[string]string, out any) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: filters: %v", entity.ErrValidation, err)
	}
	return nil
}
