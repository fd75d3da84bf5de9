package usecase

import (
	"time"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

// Staleness windows of the resource hooks.
const (
	staleUsers        = 5 * time.Minute
	staleTeams        = 5 * time.Minute
	staleTeamMembers  = time.Minute
	staleEmployees    = 2 * time.Minute
	staleInvitations  = time.Minute
	stalePlans        = 30 * time.Minute
	staleSubscription = time.Minute
	staleProjectTasks = 30 * time.Second
	staleFacturations = time.Minute
	staleOnboarding   = 5 * time.Minute
)

// UpdatePayload addresses a partial update to one resource.
type UpdatePayload[T any] struct {
	ID    string
	Input T
}

// Empty is the result of writes that answer with no body.
type Empty struct{}

func hasToken(tokens repository.TokenStore) bool {
	return tokens != nil && tokens.HasToken()
}

func pageData[T any](page entity.Page[T], err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if page.Data == nil {
		return []T{}, nil
	}
	return page.Data, nil
}

func keys(ks ...entity.QueryKey) []entity.QueryKey {
	return ks
}
