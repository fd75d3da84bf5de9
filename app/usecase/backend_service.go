package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

// Collections of the reference ERP API.
const (
	CollectionUsers                 = "users"
	CollectionTeams                 = "teams"
	CollectionTeamMembers           = "team_members"
	CollectionEmployees             = "employees"
	CollectionVacations             = "vacations"
	CollectionInvitations           = "invitations"
	CollectionPlans                 = "subscription_plans"
	CollectionSubscriptions         = "subscriptions"
	CollectionProjectTasks          = "project_tasks"
	CollectionFacturations          = "facturations"
	CollectionOnboardingSteps       = "onboarding_steps"
	CollectionOnboardingCompletions = "onboarding_completions"
)

const (
	defaultPerPage     = 50
	maxPerPage         = 500
	subscriptionPeriod = 30 * 24 * time.Hour
)

// fields the API owns and clients may not write
var readOnlyFields = []string{"id", "created_at", "api_token"}

type collectionRules struct {
	required []string
	defaults entity.Document
	// unique fields reject a second document with the same non-empty value
	unique []string
}

var rules = map[string]collectionRules{
	CollectionUsers: {
		required: []string{"email", "name"},
		defaults: entity.Document{"role": "member"},
		unique:   []string{"email"},
	},
	CollectionTeams: {
		required: []string{"name"},
		unique:   []string{"slug"},
	},
	CollectionEmployees: {
		required: []string{"first_name", "last_name", "email"},
		defaults: entity.Document{"status": "active"},
	},
	CollectionInvitations: {
		required: []string{"email"},
		defaults: entity.Document{"status": entity.InvitationStatusPending, "resend_count": 0},
	},
	CollectionProjectTasks: {
		required: []string{"project_id", "title"},
		defaults: entity.Document{"status": "todo"},
	},
	CollectionFacturations: {
		required: []string{"number", "client"},
		defaults: entity.Document{"status": entity.FacturationStatusDraft, "currency": "EUR"},
		unique:   []string{"number"},
	},
}

// UniqueFields lists, per collection, the fields no two documents may share.
func UniqueFields() map[string][]string {
	out := make(map[string][]string)
	for collection, r := range rules {
		if len(r.unique) > 0 {
			out[collection] = append([]string(nil), r.unique...)
		}
	}
	return out
}

// ListParams selects one page of a collection. Filters match string fields
// exactly, except "search" which matches any string field case-insensitively.
type ListParams struct {
	Filters map[string]string
	Page    int
	PerPage int
}

// BackendService is the reference ERP API the portal consumes.
type BackendService struct {
	store repository.DocumentStore
	log   *zap.Logger
	now   func() time.Time
}

func NewBackendService(store repository.DocumentStore, log *zap.Logger) *BackendService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackendService{store: store, log: log.Named("backend"), now: time.Now}
}

func (s *BackendService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Seed inserts the plan catalogue, the onboarding steps and, when adminToken
// is set, an admin user owning that token. Existing documents are kept.
func (s *BackendService) Seed(ctx context.Context, adminToken string) error {
	plans := []entity.SubscriptionPlan{
		{ID: "starter", Name: "Starter", PriceCents: 0, Currency: "EUR", Interval: "month", Features: []string{"5 users"}},
		{ID: "team", Name: "Team", PriceCents: 2900, Currency: "EUR", Interval: "month", Features: []string{"50 users", "invoicing"}},
		{ID: "business", Name: "Business", PriceCents: 9900, Currency: "EUR", Interval: "month", Features: []string{"unlimited users", "invoicing", "sso"}},
	}
	for _, p := range plans {
		if err := s.seedOne(ctx, CollectionPlans, p.ID, p); err != nil {
			return err
		}
	}

	steps := []entity.OnboardingStep{
		{ID: "profile", Title: "Complete your profile", Order: 1},
		{ID: "team", Title: "Create your first team", Order: 2},
		{ID: "invite", Title: "Invite a colleague", Order: 3},
		{ID: "billing", Title: "Choose a plan", Order: 4},
	}
	for _, st := range steps {
		if err := s.seedOne(ctx, CollectionOnboardingSteps, st.ID, st); err != nil {
			return err
		}
	}

	if adminToken == "" {
		return nil
	}
	found, err := s.store.Find(ctx, CollectionUsers, map[string]string{"api_token": adminToken})
	if err != nil {
		return fmt.Errorf("seed admin lookup: %w", err)
	}
	if len(found) > 0 {
		return nil
	}
	admin := entity.Document{
		"id":         uuid.NewString(),
		"email":      "admin@erp.local",
		"name":       "Administrator",
		"role":       "admin",
		"api_token":  adminToken,
		"created_at": s.timestamp(),
	}
	if err := s.store.Insert(ctx, CollectionUsers, admin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.log.Info("seeded admin user", zap.String("id", admin.ID()))
	return nil
}

func (s *BackendService) seedOne(ctx context.Context, collection, id string, v any) error {
	_, err := s.store.Get(ctx, collection, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("seed %s/%s: %w", collection, id, err)
	}
	doc, err := entity.ToDocument(v)
	if err != nil {
		return err
	}
	doc["created_at"] = s.timestamp()
	if err := s.store.Insert(ctx, collection, doc); err != nil {
		return fmt.Errorf("seed %s/%s: %w", collection, id, err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *BackendService) Authenticate(ctx context.Context, token string) (entity.Document, error) {
	if token == "" {
		return nil, entity.ErrUnauthenticated
	}
	found, err := s.store.Find(ctx, CollectionUsers, map[string]string{"api_token": token})
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if len(found) == 0 {
		return nil, entity.ErrUnauthenticated
	}
	return public(found[0]), nil
}

func (s *BackendService) List(ctx context.Context, collection string, p ListParams) (entity.Page[entity.Document], error) {
	filter := make(map[string]string, len(p.Filters))
	search := ""
	for k, v := range p.Filters {
		if k == "search" {
			search = strings.ToLower(v)
			continue
		}
		filter[k] = v
	}
	docs, err := s.store.Find(ctx, collection, filter)
	if err != nil {
		return entity.Page[entity.Document]{}, fmt.Errorf("list %s: %w", collection, err)
	}
	if search != "" {
		kept := docs[:0]
		for _, d := range docs {
			if matchesSearch(d, search) {
				kept = append(kept, d)
			}
		}
		docs = kept
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].String("created_at") < docs[j].String("created_at")
	})
	return paginate(docs, p.Page, p.PerPage), nil
}

func matchesSearch(d entity.Document, needle string) bool {
	for k, v := range d {
		if k == "id" || k == "api_token" {
			continue
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func paginate(docs []entity.Document, page, perPage int) entity.Page[entity.Document] {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	out := entity.Page[entity.Document]{Total: len(docs), Page: page, PerPage: perPage, Data: []entity.Document{}}
	start := (page - 1) * perPage
	if start >= len(docs) {
		return out
	}
	end := min(start+perPage, len(docs))
	for _, d := range docs[start:end] {
		out.Data = append(out.Data, public(d))
	}
	return out
}

func (s *BackendService) Get(ctx context.Context, collection, id string) (entity.Document, error) {
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return public(doc), nil
}

func (s *BackendService) Create(ctx context.Context, collection string, in entity.Document) (entity.Document, error) {
	r := rules[collection]
	doc := entity.Document{}
	for k, v := range r.defaults {
		doc[k] = v
	}
	for k, v := range in {
		doc[k] = v
	}
	for _, f := range readOnlyFields {
		delete(doc, f)
	}
	for _, f := range r.required {
		if doc.String(f) == "" {
			return nil, fmt.Errorf("%w: %s is required", entity.ErrValidation, f)
		}
	}
	if err := s.checkUnique(ctx, collection, "", doc); err != nil {
		return nil, err
	}
	doc["id"] = uuid.NewString()
	doc["created_at"] = s.timestamp()
	if collection == CollectionUsers {
		doc["api_token"] = uuid.NewString()
	}
	if err := s.store.Insert(ctx, collection, doc); err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	s.log.Debug("document created", zap.String("collection", collection), zap.String("id", doc.ID()))
	return public(doc), nil
}

func (s *BackendService) checkUnique(ctx context.Context, collection, selfID string, doc entity.Document) error {
	for _, f := range rules[collection].unique {
		v := doc.String(f)
		if v == "" {
			continue
		}
		found, err := s.store.Find(ctx, collection, map[string]string{f: v})
		if err != nil {
			return fmt.Errorf("check unique %s.%s: %w", collection, f, err)
		}
		for _, d := range found {
			if d.ID() != selfID {
				return fmt.Errorf("%w: %s %q already exists", entity.ErrConflict, f, v)
			}
		}
	}
	return nil
}

func (s *BackendService) Update(ctx context.Context, collection, id string, patch entity.Document) (entity.Document, error) {
	clean := entity.Document{}
	for k, v := range patch {
		clean[k] = v
	}
	for _, f := range readOnlyFields {
		delete(clean, f)
	}
	for _, f := range rules[collection].required {
		if v, ok := clean[f]; ok && v == "" {
			return nil, fmt.Errorf("%w: %s cannot be empty", entity.ErrValidation, f)
		}
	}
	if err := s.checkUnique(ctx, collection, id, clean); err != nil {
		return nil, err
	}
	if len(clean) == 0 {
		return s.Get(ctx, collection, id)
	}
	doc, err := s.store.Update(ctx, collection, id, clean)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return public(doc), nil
}

func (s *BackendService) Delete(ctx context.Context, collection, id string) error {
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *BackendService) TeamBySlug(ctx context.Context, slug string) (entity.Document, error) {
	return s.findOne(ctx, CollectionTeams, map[string]string{"slug": slug})
}

func (s *BackendService) findOne(ctx context.Context, collection string, filter map[string]string) (entity.Document, error) {
	found, err := s.store.Find(ctx, collection, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("find %s: %w", collection, entity.ErrNotFound)
	}
	return public(found[0]), nil
}

func (s *BackendService) TeamMembers(ctx context.Context, teamID string, p ListParams) (entity.Page[entity.Document], error) {
	if _, err := s.store.Get(ctx, CollectionTeams, teamID); err != nil {
		return entity.Page[entity.Document]{}, fmt.Errorf("team %s: %w", teamID, err)
	}
	return s.List(ctx, CollectionTeamMembers, ListParams{
		Filters: map[string]string{"team_id": teamID},
		Page:    p.Page,
		PerPage: p.PerPage,
	})
}

func (s *BackendService) AddTeamMember(ctx context.Context, teamID string, in entity.AddTeamMemberInput) (entity.Document, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", entity.ErrValidation)
	}
	if _, err := s.store.Get(ctx, CollectionTeams, teamID); err != nil {
		return nil, fmt.Errorf("team %s: %w", teamID, err)
	}
	if _, err := s.store.Get(ctx, CollectionUsers, in.UserID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user %s", entity.ErrValidation, in.UserID)
		}
		return nil, err
	}
	existing, err := s.store.Find(ctx, CollectionTeamMembers, map[string]string{"team_id": teamID, "user_id": in.UserID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: user %s is already a member", entity.ErrConflict, in.UserID)
	}
	role := in.Role
	if role == "" {
		role = "member"
	}
	doc := entity.Document{
		"id":         uuid.NewString(),
		"team_id":    teamID,
		"user_id":    in.UserID,
		"role":       role,
		"created_at": s.timestamp(),
	}
	if err := s.store.Insert(ctx, CollectionTeamMembers, doc); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return doc, nil
}

func (s *BackendService) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	found, err := s.store.Find(ctx, CollectionTeamMembers, map[string]string{"team_id": teamID, "user_id": userID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("member %s of team %s: %w", userID, teamID, entity.ErrNotFound)
	}
	return s.Delete(ctx, CollectionTeamMembers, found[0].ID())
}

func (s *BackendService) Vacations(ctx context.Context, employeeID string, p ListParams) (entity.Page[entity.Document], error) {
	if _, err := s.store.Get(ctx, CollectionEmployees, employeeID); err != nil {
		return entity.Page[entity.Document]{}, fmt.Errorf("employee %s: %w", employeeID, err)
	}
	return s.List(ctx, CollectionVacations, ListParams{
		Filters: map[string]string{"employee_id": employeeID},
		Page:    p.Page,
		PerPage: p.PerPage,
	})
}

func (s *BackendService) RequestVacation(ctx context.Context, employeeID string, in entity.RequestVacationInput) (entity.Document, error) {
	if in.StartDate == "" || in.EndDate == "" {
		return nil, fmt.Errorf("%w: start_date and end_date are required", entity.ErrValidation)
	}
	if in.EndDate < in.StartDate {
		return nil, fmt.Errorf("%w: end_date before start_date", entity.ErrValidation)
	}
	if _, err := s.store.Get(ctx, CollectionEmployees, employeeID); err != nil {
		return nil, fmt.Errorf("employee %s: %w", employeeID, err)
	}
	doc := entity.Document{
		"id":          uuid.NewString(),
		"employee_id": employeeID,
		"start_date":  in.StartDate,
		"end_date":    in.EndDate,
		"status":      entity.VacationStatusPending,
		"created_at":  s.timestamp(),
	}
	if err := s.store.Insert(ctx, CollectionVacations, doc); err != nil {
		return nil, fmt.Errorf("request vacation: %w", err)
	}
	return doc, nil
}

func (s *BackendService) ApproveVacation(ctx context.Context, employeeID, vacationID string) (entity.Document, error) {
	v, err := s.store.Get(ctx, CollectionVacations, vacationID)
	if err != nil {
		return nil, fmt.Errorf("vacation %s: %w", vacationID, err)
	}
	if v.String("employee_id") != employeeID {
		return nil, fmt.Errorf("vacation %s of employee %s: %w", vacationID, employeeID, entity.ErrNotFound)
	}
	if v.String("status") == entity.VacationStatusApproved {
		return public(v), nil
	}
	return s.Update(ctx, CollectionVacations, vacationID, entity.Document{
		"status":      entity.VacationStatusApproved,
		"approved_at": s.timestamp(),
	})
}

func (s *BackendService) CreateInvitation(ctx context.Context, in entity.Document) (entity.Document, error) {
	in = clone(in)
	in["status"] = entity.InvitationStatusPending
	in["sent_at"] = s.timestamp()
	return s.Create(ctx, CollectionInvitations, in)
}

func (s *BackendService) ResendInvitation(ctx context.Context, id string) (entity.Document, error) {
	inv, err := s.store.Get(ctx, CollectionInvitations, id)
	if err != nil {
		return nil, fmt.Errorf("invitation %s: %w", id, err)
	}
	if inv.String("status") != entity.InvitationStatusPending {
		return nil, fmt.Errorf("%w: invitation is %s", entity.ErrConflict, inv.String("status"))
	}
	return s.Update(ctx, CollectionInvitations, id, entity.Document{
		"sent_at":      s.timestamp(),
		"resend_count": toInt(inv["resend_count"]) + 1,
	})
}

func (s *BackendService) RevokeInvitation(ctx context.Context, id string) error {
	_, err := s.Update(ctx, CollectionInvitations, id, entity.Document{"status": entity.InvitationStatusRevoked})
	return err
}

// CurrentSubscription returns the active subscription of userID or ErrNotFound.
func (s *BackendService) CurrentSubscription(ctx context.Context, userID string) (entity.Document, error) {
	return s.findOne(ctx, CollectionSubscriptions, map[string]string{
		"user_id": userID,
		"status":  entity.SubscriptionStatusActive,
	})
}

// Subscribe replaces the active subscription of userID.
func (s *BackendService) Subscribe(ctx context.Context, userID string, in entity.SubscribeInput) (entity.Document, error) {
	if in.PlanID == "" {
		return nil, fmt.Errorf("%w: plan_id is required", entity.ErrValidation)
	}
	if _, err := s.store.Get(ctx, CollectionPlans, in.PlanID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown plan %s", entity.ErrValidation, in.PlanID)
		}
		return nil, err
	}
	if _, err := s.CancelSubscription(ctx, userID); err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	doc := entity.Document{
		"id":                 uuid.NewString(),
		"user_id":            userID,
		"plan_id":            in.PlanID,
		"status":             entity.SubscriptionStatusActive,
		"current_period_end": now.Add(subscriptionPeriod).Format(time.RFC3339),
		"created_at":         now.Format(time.RFC3339Nano),
	}
	if err := s.store.Insert(ctx, CollectionSubscriptions, doc); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return doc, nil
}

func (s *BackendService) CancelSubscription(ctx context.Context, userID string) (entity.Document, error) {
	cur, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, CollectionSubscriptions, cur.ID(), entity.Document{
		"status":      entity.SubscriptionStatusCanceled,
		"canceled_at": s.timestamp(),
	})
}

func (s *BackendService) SendFacturation(ctx context.Context, id string) (entity.Document, error) {
	f, err := s.store.Get(ctx, CollectionFacturations, id)
	if err != nil {
		return nil, fmt.Errorf("facturation %s: %w", id, err)
	}
	if f.String("status") == entity.FacturationStatusPaid {
		return nil, fmt.Errorf("%w: facturation %s is already paid", entity.ErrConflict, id)
	}
	return s.Update(ctx, CollectionFacturations, id, entity.Document{
		"status":  entity.FacturationStatusSent,
		"sent_at": s.timestamp(),
	})
}

// OnboardingSteps lists the seeded steps with userID's completion state.
func (s *BackendService) OnboardingSteps(ctx context.Context, userID string) (entity.Page[entity.Document], error) {
	steps, err := s.store.Find(ctx, CollectionOnboardingSteps, nil)
	if err != nil {
		return entity.Page[entity.Document]{}, fmt.Errorf("onboarding steps: %w", err)
	}
	done, err := s.store.Find(ctx, CollectionOnboardingCompletions, map[string]string{"user_id": userID})
	if err != nil {
		return entity.Page[entity.Document]{}, fmt.Errorf("onboarding completions: %w", err)
	}
	completedAt := make(map[string]string, len(done))
	for _, d := range done {
		completedAt[d.String("step_id")] = d.String("completed_at")
	}

	out := make([]entity.Document, 0, len(steps))
	for _, st := range steps {
		st = public(st)
		at, ok := completedAt[st.ID()]
		st["completed"] = ok
		if ok {
			st["completed_at"] = at
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return toInt(out[i]["order"]) < toInt(out[j]["order"])
	})
	return entity.Page[entity.Document]{Data: out, Total: len(out)}, nil
}

func (s *BackendService) CompleteOnboardingStep(ctx context.Context, userID, stepID string) (entity.Document, error) {
	st, err := s.store.Get(ctx, CollectionOnboardingSteps, stepID)
	if err != nil {
		return nil, fmt.Errorf("onboarding step %s: %w", stepID, err)
	}
	st = public(st)
	existing, err := s.store.Find(ctx, CollectionOnboardingCompletions, map[string]string{"user_id": userID, "step_id": stepID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		st["completed"] = true
		st["completed_at"] = existing[0].String("completed_at")
		return st, nil
	}
	at := s.timestamp()
	if err := s.store.Insert(ctx, CollectionOnboardingCompletions, entity.Document{
		"id":           uuid.NewString(),
		"user_id":      userID,
		"step_id":      stepID,
		"completed_at": at,
		"created_at":   at,
	}); err != nil {
		return nil, fmt.Errorf("complete step: %w", err)
	}
	st["completed"] = true
	st["completed_at"] = at
	return st, nil
}

// public strips fields only the API itself may see.
func public(d entity.Document) entity.Document {
	out := clone(d)
	delete(out, "api_token")
	return out
}

func clone(d entity.Document) entity.Document {
	out := make(entity.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
