package repository

import (
	"context"

	"github.com/mark47B/erp-portal/app/domain/entity"
)

// DocumentStore backs the reference ERP API. Missing documents yield entity.ErrNotFound.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc entity.Document) error
	Get(ctx context.Context, collection, id string) (entity.Document, error)
	Find(ctx context.Context, collection string, filter map[string]string) ([]entity.Document, error)
	Update(ctx context.Context, collection, id string, patch entity.Document) (entity.Document, error)
	Delete(ctx context.Context, collection, id string) error
}
