package usecase

import "github.com/mark47B/erp-portal/app/domain/entity"

// QueryKeys is the key namespace of every cached read. Broader keys are
// prefixes of narrower ones, so invalidating Teams.All() covers every team key.
var QueryKeys = struct {
	Users         userKeys
	Teams         teamKeys
	Employees     employeeKeys
	Invitations   invitationKeys
	Subscriptions subscriptionKeys
	ProjectTasks  projectTaskKeys
	Facturations  facturationKeys
	Onboarding    onboardingKeys
}{}

type userKeys struct{}

func (userKeys) All() entity.QueryKey     { return entity.QueryKey{"users"} }
func (userKeys) Lists() entity.QueryKey   { return entity.QueryKey{"users", "list"} }
func (userKeys) Details() entity.QueryKey { return entity.QueryKey{"users", "detail"} }
func (userKeys) Me() entity.QueryKey      { return entity.QueryKey{"users", "me"} }

func (userKeys) List(f entity.UserFilters) entity.QueryKey {
	return entity.QueryKey{"users", "list", f}
}

func (userKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"users", "detail", id}
}

type teamKeys struct{}

func (teamKeys) All() entity.QueryKey     { return entity.QueryKey{"teams"} }
func (teamKeys) Lists() entity.QueryKey   { return entity.QueryKey{"teams", "list"} }
func (teamKeys) Details() entity.QueryKey { return entity.QueryKey{"teams", "detail"} }

func (teamKeys) List(f entity.TeamFilters) entity.QueryKey {
	return entity.QueryKey{"teams", "list", f}
}

func (teamKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"teams", "detail", id}
}

func (teamKeys) BySlug(slug string) entity.QueryKey {
	return entity.QueryKey{"teams", "slug", slug}
}

// Members sits under Detail(teamID), so invalidating a team covers its members.
func (teamKeys) Members(teamID string) entity.QueryKey {
	return entity.QueryKey{"teams", "detail", teamID, "members"}
}

type employeeKeys struct{}

func (employeeKeys) All() entity.QueryKey     { return entity.QueryKey{"employees"} }
func (employeeKeys) Lists() entity.QueryKey   { return entity.QueryKey{"employees", "list"} }
func (employeeKeys) Details() entity.QueryKey { return entity.QueryKey{"employees", "detail"} }

func (employeeKeys) List(f entity.EmployeeFilters) entity.QueryKey {
	return entity.QueryKey{"employees", "list", f}
}

func (employeeKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"employees", "detail", id}
}

func (employeeKeys) Vacations(employeeID string) entity.QueryKey {
	return entity.QueryKey{"employees", "vacations", employeeID}
}

type invitationKeys struct{}

func (invitationKeys) All() entity.QueryKey     { return entity.QueryKey{"invitations"} }
func (invitationKeys) Lists() entity.QueryKey   { return entity.QueryKey{"invitations", "list"} }
func (invitationKeys) Details() entity.QueryKey { return entity.QueryKey{"invitations", "detail"} }

func (invitationKeys) List(f entity.InvitationFilters) entity.QueryKey {
	return entity.QueryKey{"invitations", "list", f}
}

func (invitationKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"invitations", "detail", id}
}

type subscriptionKeys struct{}

func (subscriptionKeys) All() entity.QueryKey     { return entity.QueryKey{"subscriptions"} }
func (subscriptionKeys) Plans() entity.QueryKey   { return entity.QueryKey{"subscriptions", "plans"} }
func (subscriptionKeys) Current() entity.QueryKey { return entity.QueryKey{"subscriptions", "current"} }

type projectTaskKeys struct{}

func (projectTaskKeys) All() entity.QueryKey     { return entity.QueryKey{"project-tasks"} }
func (projectTaskKeys) Lists() entity.QueryKey   { return entity.QueryKey{"project-tasks", "list"} }
func (projectTaskKeys) Details() entity.QueryKey { return entity.QueryKey{"project-tasks", "detail"} }

func (projectTaskKeys) List(f entity.ProjectTaskFilters) entity.QueryKey {
	return entity.QueryKey{"project-tasks", "list", f}
}

func (projectTaskKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"project-tasks", "detail", id}
}

type facturationKeys struct{}

func (facturationKeys) All() entity.QueryKey     { return entity.QueryKey{"facturations"} }
func (facturationKeys) Lists() entity.QueryKey   { return entity.QueryKey{"facturations", "list"} }
func (facturationKeys) Details() entity.QueryKey { return entity.QueryKey{"facturations", "detail"} }

func (facturationKeys) List(f entity.FacturationFilters) entity.QueryKey {
	return entity.QueryKey{"facturations", "list", f}
}

func (facturationKeys) Detail(id string) entity.QueryKey {
	return entity.QueryKey{"facturations", "detail", id}
}

type onboardingKeys struct{}

func (onboardingKeys) All() entity.QueryKey      { return entity.QueryKey{"onboarding"} }
func (onboardingKeys) Steps() entity.QueryKey    { return entity.QueryKey{"onboarding", "steps"} }
func (onboardingKeys) Progress() entity.QueryKey { return entity.QueryKey{"onboarding", "progress"} }
