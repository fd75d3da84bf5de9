package apiclient

import (
	"context"
	"net/http"

	"github.com/mark47B/erp-portal/app/domain/entity"
)

type users struct{ c *Client }

func (a users) List(ctx context.Context, f entity.UserFilters) (entity.Page[entity.User], error) {
	return list[entity.User](ctx, a.c, "/users", f)
}

func (a users) Get(ctx context.Context, id string) (*entity.User, error) {
	return send[entity.User](ctx, a.c, http.MethodGet, "/users/"+seg(id), nil)
}

func (a users) Me(ctx context.Context) (*entity.User, error) {
	return send[entity.User](ctx, a.c, http.MethodGet, "/users/me", nil)
}

func (a users) Create(ctx context.Context, in entity.CreateUserInput) (*entity.User, error) {
	return send[entity.User](ctx, a.c, http.MethodPost, "/users", in)
}

func (a users) Update(ctx context.Context, id string, in entity.UpdateUserInput) (*entity.User, error) {
	return send[entity.User](ctx, a.c, http.MethodPatch, "/users/"+seg(id), in)
}

func (a users) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/users/"+seg(id), nil, nil, nil)
}

type teams struct{ c *Client }

func (a teams) List(ctx context.Context, f entity.TeamFilters) (entity.Page[entity.Team], error) {
	return list[entity.Team](ctx, a.c, "/teams", f)
}

func (a teams) Get(ctx context.Context, id string) (*entity.Team, error) {
	return send[entity.Team](ctx, a.c, http.MethodGet, "/teams/"+seg(id), nil)
}

func (a teams) GetBySlug(ctx context.Context, slug string) (*entity.Team, error) {
	return send[entity.Team](ctx, a.c, http.MethodGet, "/teams/slug/"+seg(slug), nil)
}

func (a teams) Create(ctx context.Context, in entity.CreateTeamInput) (*entity.Team, error) {
	return send[entity.Team](ctx, a.c, http.MethodPost, "/teams", in)
}

func (a teams) Update(ctx context.Context, id string, in entity.UpdateTeamInput) (*entity.Team, error) {
	return send[entity.Team](ctx, a.c, http.MethodPatch, "/teams/"+seg(id), in)
}

func (a teams) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/teams/"+seg(id), nil, nil, nil)
}

func (a teams) Members(ctx context.Context, teamID string) (entity.Page[entity.TeamMember], error) {
	return list[entity.TeamMember](ctx, a.c, "/teams/"+seg(teamID)+"/members", nil)
}

func (a teams) AddMember(ctx context.Context, teamID string, in entity.AddTeamMemberInput) (*entity.TeamMember, error) {
	return send[entity.TeamMember](ctx, a.c, http.MethodPost, "/teams/"+seg(teamID)+"/members", in)
}

func (a teams) RemoveMember(ctx context.Context, teamID, userID string) error {
	return a.c.do(ctx, http.MethodDelete, "/teams/"+seg(teamID)+"/members/"+seg(userID), nil, nil, nil)
}

type employees struct{ c *Client }

func (a employees) List(ctx context.Context, f entity.EmployeeFilters) (entity.Page[entity.Employee], error) {
	return list[entity.Employee](ctx, a.c, "/employees", f)
}

func (a employees) Get(ctx context.Context, id string) (*entity.Employee, error) {
	return send[entity.Employee](ctx, a.c, http.MethodGet, "/employees/"+seg(id), nil)
}

func (a employees) Create(ctx context.Context, in entity.CreateEmployeeInput) (*entity.Employee, error) {
	return send[entity.Employee](ctx, a.c, http.MethodPost, "/employees", in)
}

func (a employees) Update(ctx context.Context, id string, in entity.UpdateEmployeeInput) (*entity.Employee, error) {
	return send[entity.Employee](ctx, a.c, http.MethodPatch, "/employees/"+seg(id), in)
}

func (a employees) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/employees/"+seg(id), nil, nil, nil)
}

func (a employees) Vacations(ctx context.Context, employeeID string) (entity.Page[entity.Vacation], error) {
	return list[entity.Vacation](ctx, a.c, "/employees/"+seg(employeeID)+"/vacations", nil)
}

func (a employees) RequestVacation(ctx context.Context, employeeID string, in entity.RequestVacationInput) (*entity.Vacation, error) {
	return send[entity.Vacation](ctx, a.c, http.MethodPost, "/employees/"+seg(employeeID)+"/vacations", in)
}

func (a employees) ApproveVacation(ctx context.Context, employeeID, vacationID string) (*entity.Vacation, error) {
	path := "/employees/" + seg(employeeID) + "/vacations/" + seg(vacationID) + "/approve"
	return send[entity.Vacation](ctx, a.c, http.MethodPost, path, nil)
}

type invitations struct{ c *Client }

func (a invitations) List(ctx context.Context, f entity.InvitationFilters) (entity.Page[entity.Invitation], error) {
	return list[entity.Invitation](ctx, a.c, "/invitations", f)
}

func (a invitations) Get(ctx context.Context, id string) (*entity.Invitation, error) {
	return send[entity.Invitation](ctx, a.c, http.MethodGet, "/invitations/"+seg(id), nil)
}

func (a invitations) Create(ctx context.Context, in entity.CreateInvitationInput) (*entity.Invitation, error) {
	return send[entity.Invitation](ctx, a.c, http.MethodPost, "/invitations", in)
}

func (a invitations) Resend(ctx context.Context, id string) (*entity.Invitation, error) {
	return send[entity.Invitation](ctx, a.c, http.MethodPost, "/invitations/"+seg(id)+"/resend", nil)
}

func (a invitations) Revoke(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/invitations/"+seg(id), nil, nil, nil)
}

type subscriptions struct{ c *Client }

func (a subscriptions) Plans(ctx context.Context) (entity.Page[entity.SubscriptionPlan], error) {
	return list[entity.SubscriptionPlan](ctx, a.c, "/subscriptions/plans", nil)
}

func (a subscriptions) Current(ctx context.Context) (*entity.Subscription, error) {
	return send[entity.Subscription](ctx, a.c, http.MethodGet, "/subscriptions/current", nil)
}

func (a subscriptions) Subscribe(ctx context.Context, in entity.SubscribeInput) (*entity.Subscription, error) {
	return send[entity.Subscription](ctx, a.c, http.MethodPost, "/subscriptions", in)
}

func (a subscriptions) Cancel(ctx context.Context) (*entity.Subscription, error) {
	return send[entity.Subscription](ctx, a.c, http.MethodPost, "/subscriptions/current/cancel", nil)
}

type projectTasks struct{ c *Client }

func (a projectTasks) List(ctx context.Context, f entity.ProjectTaskFilters) (entity.Page[entity.ProjectTask], error) {
	return list[entity.ProjectTask](ctx, a.c, "/project-tasks", f)
}

func (a projectTasks) Get(ctx context.Context, id string) (*entity.ProjectTask, error) {
	return send[entity.ProjectTask](ctx, a.c, http.MethodGet, "/project-tasks/"+seg(id), nil)
}

func (a projectTasks) Create(ctx context.Context, in entity.CreateProjectTaskInput) (*entity.ProjectTask, error) {
	return send[entity.ProjectTask](ctx, a.c, http.MethodPost, "/project-tasks", in)
}

func (a projectTasks) Update(ctx context.Context, id string, in entity.UpdateProjectTaskInput) (*entity.ProjectTask, error) {
	return send[entity.ProjectTask](ctx, a.c, http.MethodPatch, "/project-tasks/"+seg(id), in)
}

func (a projectTasks) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/project-tasks/"+seg(id), nil, nil, nil)
}

type facturations struct{ c *Client }

func (a facturations) List(ctx context.Context, f entity.FacturationFilters) (entity.Page[entity.Facturation], error) {
	return list[entity.Facturation](ctx, a.c, "/facturations", f)
}

func (a facturations) Get(ctx context.Context, id string) (*entity.Facturation, error) {
	return send[entity.Facturation](ctx, a.c, http.MethodGet, "/facturations/"+seg(id), nil)
}

func (a facturations) Create(ctx context.Context, in entity.CreateFacturationInput) (*entity.Facturation, error) {
	return send[entity.Facturation](ctx, a.c, http.MethodPost, "/facturations", in)
}

func (a facturations) Update(ctx context.Context, id string, in entity.UpdateFacturationInput) (*entity.Facturation, error) {
	return send[entity.Facturation](ctx, a.c, http.MethodPatch, "/facturations/"+seg(id), in)
}

func (a facturations) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/facturations/"+seg(id), nil, nil, nil)
}

func (a facturations) Send(ctx context.Context, id string) (*entity.Facturation, error) {
	return send[entity.Facturation](ctx, a.c, http.MethodPost, "/facturations/"+seg(id)+"/send", nil)
}

type onboarding struct{ c *Client }

func (a onboarding) Steps(ctx context.Context) (entity.Page[entity.OnboardingStep], error) {
	return list[entity.OnboardingStep](ctx, a.c, "/onboarding/steps", nil)
}

func (a onboarding) CompleteStep(ctx context.Context, stepID string) (*entity.OnboardingStep, error) {
	return send[entity.OnboardingStep](ctx, a.c, http.MethodPost, "/onboarding/steps/"+seg(stepID)+"/complete", nil)
}
