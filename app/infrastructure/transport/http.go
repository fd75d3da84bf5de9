package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
	"github.com/mark47B/erp-portal/app/usecase"
)

const maxBody = 1 << 20

type ctxKey int

const userKey ctxKey = iota

// APIServer serves the reference ERP REST API.
type APIServer struct {
	svc *usecase.BackendService
	log *zap.Logger
	mux *http.ServeMux
}

func NewAPIServer(svc *usecase.BackendService, log *zap.Logger) *APIServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &APIServer{svc: svc, log: log.Named("api"), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *APIServer) routes() {
	s.crud("users", usecase.CollectionUsers)
	s.mux.HandleFunc("GET /users/me", s.me)

	s.crud("teams", usecase.CollectionTeams)
	s.mux.HandleFunc("GET /teams/{id}/{sub}", s.teamSubresource)
	s.mux.HandleFunc("POST /teams/{id}/members", s.addMember)
	s.mux.HandleFunc("DELETE /teams/{id}/members/{userID}", s.removeMember)

	s.crud("employees", usecase.CollectionEmployees)
	s.mux.HandleFunc("GET /employees/{id}/vacations", s.vacations)
	s.mux.HandleFunc("POST /employees/{id}/vacations", s.requestVacation)
	s.mux.HandleFunc("POST /employees/{id}/vacations/{vid}/approve", s.approveVacation)

	s.mux.HandleFunc("GET /invitations", s.list(usecase.CollectionInvitations))
	s.mux.HandleFunc("POST /invitations", s.createInvitation)
	s.mux.HandleFunc("GET /invitations/{id}", s.get(usecase.CollectionInvitations))
	s.mux.HandleFunc("DELETE /invitations/{id}", s.revokeInvitation)
	s.mux.HandleFunc("POST /invitations/{id}/resend", s.resendInvitation)

	s.mux.HandleFunc("GET /subscriptions/plans", s.list(usecase.CollectionPlans))
	s.mux.HandleFunc("GET /subscriptions/current", s.currentSubscription)
	s.mux.HandleFunc("POST /subscriptions/current/cancel", s.cancelSubscription)
	s.mux.HandleFunc("POST /subscriptions", s.subscribe)

	s.crud("project-tasks", usecase.CollectionProjectTasks)

	s.crud("facturations", usecase.CollectionFacturations)
	s.mux.HandleFunc("POST /facturations/{id}/send", s.sendFacturation)

	s.mux.HandleFunc("GET /onboarding/steps", s.onboardingSteps)
	s.mux.HandleFunc("POST /onboarding/steps/{id}/complete", s.completeStep)
}

func (s *APIServer) crud(path, collection string) {
	s.mux.HandleFunc("GET /"+path, s.list(collection))
	s.mux.HandleFunc("POST /"+path, s.create(collection))
	s.mux.HandleFunc("GET /"+path+"/{id}", s.get(collection))
	s.mux.HandleFunc("PATCH /"+path+"/{id}", s.update(collection))
	s.mux.HandleFunc("DELETE /"+path+"/{id}", s.remove(collection))
}

// ServeHTTP authenticates every request and records it in metrics.
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		metrics.APIRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
	}()

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	user, err := s.svc.Authenticate(r.Context(), strings.TrimSpace(token))
	if err != nil {
		s.fail(sw, r, err)
		return
	}
	s.mux.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), userKey, user)))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func currentUser(r *http.Request) entity.Document {
	u, _ := r.Context().Value(userKey).(entity.Document)
	return u
}

func listParams(r *http.Request) usecase.ListParams {
	q := r.URL.Query()
	p := usecase.ListParams{Filters: map[string]string{}}
	for k := range q {
		switch k {
		case "page":
			p.Page, _ = strconv.Atoi(q.Get(k))
		case "per_page":
			p.PerPage, _ = strconv.Atoi(q.Get(k))
		default:
			p.Filters[k] = q.Get(k)
		}
	}
	return p
}

func (s *APIServer) list(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.svc.List(r.Context(), collection, listParams(r))
		s.respond(w, r, http.StatusOK, page, err)
	}
}

func (s *APIServer) get(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.svc.Get(r.Context(), collection, r.PathValue("id"))
		s.respond(w, r, http.StatusOK, doc, err)
	}
}

func (s *APIServer) create(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in entity.Document
		if err := decode(r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		doc, err := s.svc.Create(r.Context(), collection, in)
		s.respond(w, r, http.StatusCreated, doc, err)
	}
}

func (s *APIServer) update(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in entity.Document
		if err := decode(r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		doc, err := s.svc.Update(r.Context(), collection, r.PathValue("id"), in)
		s.respond(w, r, http.StatusOK, doc, err)
	}
}

func (s *APIServer) remove(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.svc.Delete(r.Context(), collection, r.PathValue("id"))
		s.respond(w, r, http.StatusNoContent, nil, err)
	}
}

func (s *APIServer) me(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, currentUser(r), nil)
}

// teamSubresource serves both /teams/slug/{slug} and /teams/{id}/members,
// which share one route shape.
func (s *APIServer) teamSubresource(w http.ResponseWriter, r *http.Request) {
	id, sub := r.PathValue("id"), r.PathValue("sub")
	switch {
	case id == "slug":
		doc, err := s.svc.TeamBySlug(r.Context(), sub)
		s.respond(w, r, http.StatusOK, doc, err)
	case sub == "members":
		page, err := s.svc.TeamMembers(r.Context(), id, listParams(r))
		s.respond(w, r, http.StatusOK, page, err)
	default:
		s.fail(w, r, entity.ErrNotFound)
	}
}

func (s *APIServer) addMember(w http.ResponseWriter, r *http.Request) {
	var in entity.AddTeamMemberInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.AddTeamMember(r.Context(), r.PathValue("id"), in)
	s.respond(w, r, http.StatusCreated, doc, err)
}

func (s *APIServer) removeMember(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RemoveTeamMember(r.Context(), r.PathValue("id"), r.PathValue("userID"))
	s.respond(w, r, http.StatusNoContent, nil, err)
}

func (s *APIServer) vacations(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Vacations(r.Context(), r.PathValue("id"), listParams(r))
	s.respond(w, r, http.StatusOK, page, err)
}

func (s *APIServer) requestVacation(w http.ResponseWriter, r *http.Request) {
	var in entity.RequestVacationInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.RequestVacation(r.Context(), r.PathValue("id"), in)
	s.respond(w, r, http.StatusCreated, doc, err)
}

func (s *APIServer) approveVacation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.ApproveVacation(r.Context(), r.PathValue("id"), r.PathValue("vid"))
	s.respond(w, r, http.StatusOK, doc, err)
}

func (s *APIServer) createInvitation(w http.ResponseWriter, r *http.Request) {
	var in entity.Document
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.CreateInvitation(r.Context(), in)
	s.respond(w, r, http.StatusCreated, doc, err)
}

func (s *APIServer) resendInvitation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.ResendInvitation(r.Context(), r.PathValue("id"))
	s.respond(w, r, http.StatusOK, doc, err)
}

func (s *APIServer) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RevokeInvitation(r.Context(), r.PathValue("id"))
	s.respond(w, r, http.StatusNoContent, nil, err)
}

func (s *APIServer) currentSubscription(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.CurrentSubscription(r.Context(), currentUser(r).ID())
	s.respond(w, r, http.StatusOK, doc, err)
}

func (s *APIServer) subscribe(w http.ResponseWriter, r *http.Request) {
	var in entity.SubscribeInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.Subscribe(r.Context(), currentUser(r).ID(), in)
	s.respond(w, r, http.StatusCreated, doc, err)
}

func (s *APIServer) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.CancelSubscription(r.Context(), currentUser(r).ID())
	s.respond(w, r, http.StatusOK, doc, err)
}

func (s *APIServer) sendFacturation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.SendFacturation(r.Context(), r.PathValue("id"))
	s.respond(w, r, http.StatusOK, doc, err)
}

func (s *APIServer) onboardingSteps(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.OnboardingSteps(r.Context(), currentUser(r).ID())
	s.respond(w, r, http.StatusOK, page, err)
}

func (s *APIServer) completeStep(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.CompleteOnboardingStep(r.Context(), currentUser(r).ID(), r.PathValue("id"))
	s.respond(w, r, http.StatusOK, doc, err)
}

func decode(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return fmt.Errorf("%w: empty body", entity.ErrValidation)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return nil
}

func (s *APIServer) respond(w http.ResponseWriter, r *http.Request, code int, body any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, body)
}

func (s *APIServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StartHTTPServer serves h on addr until ctx is done.
func StartHTTPServer(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("context canceled, shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
