package repository

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
)

type UserAPI interface {
	List(ctx context.Context, filters entity.UserFilters) (entity.Page[entity.User], error)
	Get(ctx context.Context, id string) (*entity.User, error)
	Me(ctx context.Context) (*entity.User, error)
	Create(ctx context.Context, in entity.CreateUserInput) (*entity.User, error)
	Update(ctx context.Context, id string, in entity.UpdateUserInput) (*entity.User, error)
	Delete(ctx context.Context, id string) error
}

type TeamAPI interface {
	List(ctx context.Context, filters entity.TeamFilters) (entity.Page[entity.Team], error)
	Get(ctx context.Context, id string) (*entity.Team, error)
	GetBySlug(ctx context.Context, slug string) (*entity.Team, error)
	Create(ctx context.Context, in entity.CreateTeamInput) (*entity.Team, error)
	Update(ctx context.Context, id string, in entity.UpdateTeamInput) (*entity.Team, error)
	Delete(ctx context.Context, id string) error
	Members(ctx context.Context, teamID string) (entity.Page[entity.TeamMember], error)
	AddMember(ctx context.Context, teamID string, in entity.AddTeamMemberInput) (*entity.TeamMember, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
}

type EmployeeAPI interface {
	List(ctx context.Context, filters entity.EmployeeFilters) (entity.Page[entity.Employee], error)
	Get(ctx context.Context, id string) (*entity.Employee, error)
	Create(ctx context.Context, in entity.CreateEmployeeInput) (*entity.Employee, error)
	Update(ctx context.Context, id string, in entity.UpdateEmployeeInput) (*entity.Employee, error)
	Delete(ctx context.Context, id string) error
	Vacations(ctx context.Context, employeeID string) (entity.Page[entity.Vacation], error)
	RequestVacation(ctx context.Context, employeeID string, in entity.RequestVacationInput) (*entity.Vacation, error)
	ApproveVacation(ctx context.Context, employeeID, vacationID string) (*entity.Vacation, error)
}

type InvitationAPI interface {
	List(ctx context.Context, filters entity.InvitationFilters) (entity.Page[entity.Invitation], error)
	Get(ctx context.Context, id string) (*entity.Invitation, error)
	Create(ctx context.Context, in entity.CreateInvitationInput) (*entity.Invitation, error)
	Resend(ctx context.Context, id string) (*entity.Invitation, error)
	Revoke(ctx context.Context, id string) error
}

type SubscriptionAPI interface {
	Plans(ctx context.Context) (entity.Page[entity.SubscriptionPlan], error)
	Current(ctx context.Context) (*entity.Subscription, error)
	Subscribe(ctx context.Context, in entity.SubscribeInput) (*entity.Subscription, error)
	Cancel(ctx context.Context) (*entity.Subscription, error)
}

type ProjectTaskAPI interface {
	List(ctx context.Context, filters entity.ProjectTaskFilters) (entity.Page[entity.ProjectTask], error)
	Get(ctx context.Context, id string) (*entity.ProjectTask, error)
	Create(ctx context.Context, in entity.CreateProjectTaskInput) (*entity.ProjectTask, error)
	Update(ctx context.Context, id string, in entity.UpdateProjectTaskInput) (*entity.ProjectTask, error)
	Delete(ctx context.Context, id string) error
}

type FacturationAPI interface {
	List(ctx context.Context, filters entity.FacturationFilters) (entity.Page[entity.Facturation], error)
	Get(ctx context.Context, id string) (*entity.Facturation, error)
	Create(ctx context.Context, in entity.CreateFacturationInput) (*entity.Facturation, error)
	Update(ctx context.Context, id string, in entity.UpdateFacturationInput) (*entity.Facturation, error)
	Delete(ctx context.Context, id string) error
	Send(ctx context.Context, id string) (*entity.Facturation, error)
}

type OnboardingAPI interface {
	Steps(ctx context.Context) (entity.Page[entity.OnboardingStep], error)
	CompleteStep(ctx context.Context, stepID string) (*entity.OnboardingStep, error)
}
