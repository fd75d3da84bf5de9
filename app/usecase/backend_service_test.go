package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/infrastructure/storage/memory"
)

func newTestBackend(t *testing.T) *BackendService {
	t.Helper()
	s := NewBackendService(memory.NewDocumentStore(), nil)
	clock := newFakeClock()
	s.now = func() time.Time {
		clock.Advance(time.Millisecond)
		return clock.Now()
	}
	require.NoError(t, s.Seed(context.Background(), "admin-token"))
	return s
}

func TestBackendSeedIsIdempotent(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, "admin-token"))

	users, err := s.List(ctx, CollectionUsers, ListParams{})
	require.NoError(t, err)
	require.Equal(t, 1, users.Total)
	_, leaked := users.Data[0]["api_token"]
	assert.False(t, leaked)

	plans, err := s.List(ctx, CollectionPlans, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, plans.Total)

	admin, err := s.Authenticate(ctx, "admin-token")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.String("role"))
	_, err = s.Authenticate(ctx, "nope")
	assert.ErrorIs(t, err, entity.ErrUnauthenticated)
	_, err = s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, entity.ErrUnauthenticated)
}

func TestUniqueFields(t *testing.T) {
	assert.Equal(t, map[string][]string{
		CollectionUsers:        {"email"},
		CollectionTeams:        {"slug"},
		CollectionFacturations: {"number"},
	}, UniqueFields())
}

func TestBackendCreateValidatesAndEnforcesUniqueness(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CollectionTeams, entity.Document{"slug": "ops"})
	assert.ErrorIs(t, err, entity.ErrValidation)

	team, err := s.Create(ctx, CollectionTeams, entity.Document{"name": "Ops", "slug": "ops", "id": "forged"})
	require.NoError(t, err)
	assert.NotEqual(t, "forged", team.ID())
	assert.NotEmpty(t, team.String("created_at"))

	_, err = s.Create(ctx, CollectionTeams, entity.Document{"name": "Ops 2", "slug": "ops"})
	assert.ErrorIs(t, err, entity.ErrConflict)

	other, err := s.Create(ctx, CollectionTeams, entity.Document{"name": "Infra", "slug": "infra"})
	require.NoError(t, err)
	_, err = s.Update(ctx, CollectionTeams, other.ID(), entity.Document{"slug": "ops"})
	assert.ErrorIs(t, err, entity.ErrConflict)
	_, err = s.Update(ctx, CollectionTeams, team.ID(), entity.Document{"slug": "ops", "description": "on call"})
	require.NoError(t, err)
	_, err = s.Update(ctx, CollectionTeams, team.ID(), entity.Document{"name": ""})
	assert.ErrorIs(t, err, entity.ErrValidation)

	bySlug, err := s.TeamBySlug(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, "on call", bySlug.String("description"))

	user, err := s.Create(ctx, CollectionUsers, entity.Document{"email": "bob@example.com", "name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "member", user.String("role"))
	_, leaked := user["api_token"]
	assert.False(t, leaked)
}

func TestBackendListFiltersSearchAndPages(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()
	for _, name := range []string{"Ops", "Infra", "Operations Research", "Sales"} {
		_, err := s.Create(ctx, CollectionTeams, entity.Document{"name": name})
		require.NoError(t, err)
	}

	page, err := s.List(ctx, CollectionTeams, ListParams{Filters: map[string]string{"search": "OP"}})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "Ops", page.Data[0].String("name"))
	assert.Equal(t, "Operations Research", page.Data[1].String("name"))

	page, err = s.List(ctx, CollectionTeams, ListParams{Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Sales", page.Data[0].String("name"))

	page, err = s.List(ctx, CollectionTeams, ListParams{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)
}

func TestBackendTeamMembers(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()
	team, err := s.Create(ctx, CollectionTeams, entity.Document{"name": "Ops"})
	require.NoError(t, err)
	user, err := s.Create(ctx, CollectionUsers, entity.Document{"email": "a@example.com", "name": "A"})
	require.NoError(t, err)

	_, err = s.AddTeamMember(ctx, team.ID(), entity.AddTeamMemberInput{UserID: "ghost"})
	assert.ErrorIs(t, err, entity.ErrValidation)
	m, err := s.AddTeamMember(ctx, team.ID(), entity.AddTeamMemberInput{UserID: user.ID()})
	require.NoError(t, err)
	assert.Equal(t, "member", m.String("role"))
	_, err = s.AddTeamMember(ctx, team.ID(), entity.AddTeamMemberInput{UserID: user.ID()})
	assert.ErrorIs(t, err, entity.ErrConflict)

	members, err := s.TeamMembers(ctx, team.ID(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, members.Total)

	require.NoError(t, s.RemoveTeamMember(ctx, team.ID(), user.ID()))
	assert.ErrorIs(t, s.RemoveTeamMember(ctx, team.ID(), user.ID()), entity.ErrNotFound)
	_, err = s.TeamMembers(ctx, "missing", ListParams{})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestBackendVacationsAndInvitations(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()
	emp, err := s.Create(ctx, CollectionEmployees, entity.Document{"first_name": "Ada", "last_name": "L", "email": "ada@example.com"})
	require.NoError(t, err)

	_, err = s.RequestVacation(ctx, emp.ID(), entity.RequestVacationInput{StartDate: "2024-05-10", EndDate: "2024-05-01"})
	assert.ErrorIs(t, err, entity.ErrValidation)
	v, err := s.RequestVacation(ctx, emp.ID(), entity.RequestVacationInput{StartDate: "2024-05-01", EndDate: "2024-05-10"})
	require.NoError(t, err)
	assert.Equal(t, entity.VacationStatusPending, v.String("status"))

	_, err = s.ApproveVacation(ctx, "someone-else", v.ID())
	assert.ErrorIs(t, err, entity.ErrNotFound)
	approved, err := s.ApproveVacation(ctx, emp.ID(), v.ID())
	require.NoError(t, err)
	assert.Equal(t, entity.VacationStatusApproved, approved.String("status"))

	vacations, err := s.Vacations(ctx, emp.ID(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, vacations.Total)

	inv, err := s.CreateInvitation(ctx, entity.Document{"email": "new@example.com", "status": "accepted"})
	require.NoError(t, err)
	assert.Equal(t, entity.InvitationStatusPending, inv.String("status"))
	resent, err := s.ResendInvitation(ctx, inv.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, toInt(resent["resend_count"]))

	require.NoError(t, s.RevokeInvitation(ctx, inv.ID()))
	_, err = s.ResendInvitation(ctx, inv.ID())
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestBackendSubscriptions(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()

	_, err := s.CurrentSubscription(ctx, "u1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = s.Subscribe(ctx, "u1", entity.SubscribeInput{PlanID: "platinum"})
	assert.ErrorIs(t, err, entity.ErrValidation)

	first, err := s.Subscribe(ctx, "u1", entity.SubscribeInput{PlanID: "starter"})
	require.NoError(t, err)
	second, err := s.Subscribe(ctx, "u1", entity.SubscribeInput{PlanID: "team"})
	require.NoError(t, err)

	cur, err := s.CurrentSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID(), cur.ID())
	old, err := s.Get(ctx, CollectionSubscriptions, first.ID())
	require.NoError(t, err)
	assert.Equal(t, entity.SubscriptionStatusCanceled, old.String("status"))

	canceled, err := s.CancelSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, canceled.String("canceled_at"))
	_, err = s.CancelSubscription(ctx, "u1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestBackendFacturationsAndOnboarding(t *testing.T) {
	s := newTestBackend(t)
	ctx := context.Background()

	f, err := s.Create(ctx, CollectionFacturations, entity.Document{"number": "INV-1", "client": "ACME", "amount_cents": 1200})
	require.NoError(t, err)
	assert.Equal(t, "EUR", f.String("currency"))
	_, err = s.Create(ctx, CollectionFacturations, entity.Document{"number": "INV-1", "client": "Other"})
	assert.ErrorIs(t, err, entity.ErrConflict)

	sent, err := s.SendFacturation(ctx, f.ID())
	require.NoError(t, err)
	assert.Equal(t, entity.FacturationStatusSent, sent.String("status"))
	_, err = s.Update(ctx, CollectionFacturations, f.ID(), entity.Document{"status": entity.FacturationStatusPaid})
	require.NoError(t, err)
	_, err = s.SendFacturation(ctx, f.ID())
	assert.ErrorIs(t, err, entity.ErrConflict)

	steps, err := s.OnboardingSteps(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 4, steps.Total)
	assert.Equal(t, "profile", steps.Data[0].ID())
	assert.Equal(t, false, steps.Data[0]["completed"])

	done, err := s.CompleteOnboardingStep(ctx, "u1", "team")
	require.NoError(t, err)
	assert.Equal(t, true, done["completed"])
	again, err := s.CompleteOnboardingStep(ctx, "u1", "team")
	require.NoError(t, err)
	assert.Equal(t, done.String("completed_at"), again.String("completed_at"))

	steps, err = s.OnboardingSteps(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, true, steps.Data[1]["completed"])
	other, err := s.OnboardingSteps(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, false, other.Data[1]["completed"])

	_, err = s.CompleteOnboardingStep(ctx, "u1", "unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
