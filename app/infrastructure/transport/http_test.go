package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/infrastructure/apiclient"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
	"github.com/mark47B/erp-portal/app/infrastructure/storage/memory"
	"github.com/mark47B/erp-portal/app/usecase"
)

const adminToken = "admin-token"

// hitCounter counts requests per "METHOD path".
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
	next http.Handler
}

func (h *hitCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.hits[r.Method+" "+r.URL.Path]++
	h.mu.Unlock()
	h.next.ServeHTTP(w, r)
}

func (h *hitCounter) count(route string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[route]
}

type stack struct {
	url    string
	hits   *hitCounter
	tokens *memory.TokenStore
	portal *usecase.Portal
}

// newStack runs the reference API on a memory store and a portal reading it.
func newStack(t *testing.T) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := usecase.NewBackendService(memory.NewDocumentStore(), log)
	require.NoError(t, svc.Seed(context.Background(), adminToken))

	hits := &hitCounter{hits: map[string]int{}, next: NewAPIServer(svc, log)}
	srv := httptest.NewServer(hits)
	t.Cleanup(srv.Close)

	tokens := memory.NewTokenStore(adminToken)
	api, err := apiclient.New(srv.URL, tokens, 5*time.Second, log)
	require.NoError(t, err)

	qc := usecase.NewQueryClient(usecase.QueryClientConfig{
		Logger: log,
		Retry: usecase.RetryPolicy{
			MaxRetries:  2,
			ShouldRetry: usecase.RetryTransient,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
	})
	t.Cleanup(qc.Close)

	portal := usecase.NewPortal(qc, usecase.APIs{
		Users:         api.Users(),
		Teams:         api.Teams(),
		Employees:     api.Employees(),
		Invitations:   api.Invitations(),
		Subscriptions: api.Subscriptions(),
		ProjectTasks:  api.ProjectTasks(),
		Facturations:  api.Facturations(),
		Onboarding:    api.Onboarding(),
	}, tokens)
	return &stack{url: srv.URL, hits: hits, tokens: tokens, portal: portal}
}

func TestCreatedTeamAppearsInCachedList(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	r := s.portal.Teams.List(ctx, entity.TeamFilters{})
	require.NoError(t, r.Err)
	assert.Empty(t, r.Data)
	r = s.portal.Teams.List(ctx, entity.TeamFilters{})
	assert.Equal(t, 1, s.hits.count("GET /teams"))

	team, err := s.portal.TeamMutations.Create().Mutate(ctx, entity.CreateTeamInput{Name: "Ops", Slug: "ops"})
	require.NoError(t, err)
	assert.NotEmpty(t, team.ID)

	r = s.portal.Teams.List(ctx, entity.TeamFilters{})
	require.NoError(t, r.Err)
	require.Len(t, r.Data, 1)
	assert.Equal(t, "Ops", r.Data[0].Name)
	assert.Equal(t, 2, s.hits.count("GET /teams"))

	bySlug := s.portal.Teams.BySlug(ctx, "ops")
	require.NoError(t, bySlug.Err)
	assert.Equal(t, team.ID, bySlug.Data.ID)

	me := s.portal.Users.Me(ctx)
	require.NoError(t, me.Err)
	_, err = s.portal.TeamMutations.AddMember().Mutate(ctx, usecase.AddMemberPayload{
		TeamID: team.ID,
		Input:  entity.AddTeamMemberInput{UserID: me.Data.ID, Role: "owner"},
	})
	require.NoError(t, err)
	members := s.portal.Teams.Members(ctx, team.ID, true)
	require.NoError(t, members.Err)
	require.Len(t, members.Data, 1)
	assert.Equal(t, "owner", members.Data[0].Role)

	_, err = s.portal.TeamMutations.RemoveMember().Mutate(ctx, usecase.RemoveMemberPayload{TeamID: team.ID, UserID: me.Data.ID})
	require.NoError(t, err)
	members = s.portal.Teams.Members(ctx, team.ID, true)
	assert.Empty(t, members.Data)
}

func TestUpdatedFacturationIsRefetched(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	f, err := s.portal.FacturationMutations.Create().Mutate(ctx, entity.CreateFacturationInput{Number: "INV-42", Client: "ACME", AmountCents: 4200})
	require.NoError(t, err)
	assert.Equal(t, entity.FacturationStatusDraft, f.Status)

	detail := s.portal.Facturations.Detail(ctx, f.ID)
	require.NoError(t, detail.Err)
	assert.EqualValues(t, 4200, detail.Data.AmountCents)
	page := s.portal.Facturations.List(ctx, entity.FacturationFilters{Status: entity.FacturationStatusDraft})
	require.NoError(t, page.Err)
	assert.Equal(t, 1, page.Data.Total)

	_, err = s.portal.FacturationMutations.Update().Mutate(ctx, usecase.UpdatePayload[entity.UpdateFacturationInput]{
		ID:    f.ID,
		Input: entity.UpdateFacturationInput{AmountCents: 5000},
	})
	require.NoError(t, err)
	assert.False(t, s.portal.Client.IsFresh(usecase.QueryKeys.Facturations.Detail(f.ID)))

	detail = s.portal.Facturations.Detail(ctx, f.ID)
	assert.EqualValues(t, 5000, detail.Data.AmountCents)

	sent, err := s.portal.FacturationMutations.Send().Mutate(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FacturationStatusSent, sent.Status)
	page = s.portal.Facturations.List(ctx, entity.FacturationFilters{Status: entity.FacturationStatusDraft})
	assert.Equal(t, 0, page.Data.Total)
}

func TestMissingSubscriptionIsFetchedOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	r := s.portal.Subscriptions.Current(ctx)
	assert.ErrorIs(t, r.Err, entity.ErrNotFound)
	assert.Equal(t, 1, s.hits.count("GET /subscriptions/current"))

	plans := s.portal.Subscriptions.Plans(ctx)
	require.NoError(t, plans.Err)
	require.Len(t, plans.Data, 3)

	_, err := s.portal.SubscriptionMutations.Subscribe().Mutate(ctx, entity.SubscribeInput{PlanID: plans.Data[1].ID})
	require.NoError(t, err)
	r = s.portal.Subscriptions.Current(ctx)
	require.NoError(t, r.Err)
	assert.Equal(t, plans.Data[1].ID, r.Data.PlanID)

	canceled, err := s.portal.SubscriptionMutations.Cancel().Mutate(ctx, usecase.Empty{})
	require.NoError(t, err)
	assert.Equal(t, entity.SubscriptionStatusCanceled, canceled.Status)
}

func TestOnboardingThroughAPI(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	p := s.portal.Onboarding.Progress(ctx)
	require.NoError(t, p.Err)
	assert.Equal(t, entity.OnboardingProgress{Completed: 0, Total: 4}, p.Data)

	_, err := s.portal.OnboardingMutations.CompleteStep().Mutate(ctx, "profile")
	require.NoError(t, err)
	p = s.portal.Onboarding.Progress(ctx)
	assert.Equal(t, 1, p.Data.Completed)

	steps := s.portal.Onboarding.Steps(ctx)
	require.NoError(t, steps.Err)
	assert.True(t, steps.Data[0].Completed)
	assert.False(t, steps.Data[1].Completed)
}

func TestEmployeesAndInvitationsThroughAPI(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	emp, err := s.portal.EmployeeMutations.Create().Mutate(ctx, entity.CreateEmployeeInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	v, err := s.portal.EmployeeMutations.RequestVacation().Mutate(ctx, usecase.VacationRequestPayload{
		EmployeeID: emp.ID,
		Input:      entity.RequestVacationInput{StartDate: "2024-07-01", EndDate: "2024-07-14"},
	})
	require.NoError(t, err)
	_, err = s.portal.EmployeeMutations.ApproveVacation().Mutate(ctx, usecase.VacationApprovalPayload{EmployeeID: emp.ID, VacationID: v.ID})
	require.NoError(t, err)

	vacations := s.portal.Employees.Vacations(ctx, emp.ID)
	require.NoError(t, vacations.Err)
	require.Len(t, vacations.Data, 1)
	assert.Equal(t, entity.VacationStatusApproved, vacations.Data[0].Status)

	inv, err := s.portal.InvitationMutations.Create().Mutate(ctx, entity.CreateInvitationInput{Email: "new@example.com"})
	require.NoError(t, err)
	list := s.portal.Invitations.List(ctx, entity.InvitationFilters{})
	require.NoError(t, list.Err)
	require.Len(t, list.Data, 1)

	_, err = s.portal.InvitationMutations.Revoke().Mutate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = s.portal.InvitationMutations.Resend().Mutate(ctx, inv.ID)
	assert.ErrorIs(t, err, entity.ErrConflict)
	detail := s.portal.Invitations.Detail(ctx, inv.ID)
	assert.Equal(t, entity.InvitationStatusRevoked, detail.Data.Status)
}

func TestAPIRejectsUnknownToken(t *testing.T) {
	s := newStack(t)
	before := testutil.ToFloat64(metrics.APIRequests.WithLabelValues(http.MethodGet, "401"))

	s.tokens.SetToken("stolen")
	r := s.portal.Users.Me(context.Background())
	assert.ErrorIs(t, r.Err, entity.ErrUnauthenticated)
	var apiErr *entity.APIError
	require.True(t, errors.As(r.Err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.APIRequests.WithLabelValues(http.MethodGet, "401")))
}

func TestAPIRoutingAndErrors(t *testing.T) {
	s := newStack(t)
	call := func(method, path, body string) (int, string) {
		req, err := http.NewRequest(method, s.url+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode, resp.Header.Get("Content-Type")
	}

	code, ctype := call(http.MethodGet, "/teams/slug/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "application/json", ctype)

	code, _ = call(http.MethodGet, "/teams/whatever/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(http.MethodPost, "/teams", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(http.MethodPost, "/teams", `{"name":"Ops","slug":"ops"}`)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = call(http.MethodPost, "/teams", `{"name":"Ops again","slug":"ops"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = call(http.MethodDelete, "/project-tasks/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(fmt.Errorf("x: %w", entity.ErrNotFound)))
	assert.Equal(t, http.StatusUnauthorized, statusOf(entity.ErrUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, statusOf(entity.ErrValidation))
	assert.Equal(t, http.StatusConflict, statusOf(entity.ErrConflict))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("disk full")))
}
