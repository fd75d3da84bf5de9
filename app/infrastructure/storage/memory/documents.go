package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

type collection struct {
	order []string
	docs  map[string]entity.Document
}

// DocumentStore keeps collections in memory, in insertion order.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewDocumentStore() repository.DocumentStore {
	return &DocumentStore{collections: make(map[string]*collection)}
}

func (s *DocumentStore) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]entity.Document)}
		s.collections[name] = c
	}
	return c
}

func (s *DocumentStore) Insert(_ context.Context, name string, doc entity.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("insert into %s: %w: missing id", name, entity.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("insert %s/%s: %w", name, id, entity.ErrConflict)
	}
	c.docs[id] = copyDoc(doc)
	c.order = append(c.order, id)
	return nil
}

func (s *DocumentStore) Get(_ context.Context, name, id string) (entity.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, entity.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *DocumentStore) Find(_ context.Context, name string, filter map[string]string) ([]entity.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	var out []entity.Document
	for _, id := range c.order {
		doc := c.docs[id]
		if matches(doc, filter) {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (s *DocumentStore) Update(_ context.Context, name, id string, patch entity.Document) (entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, entity.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	return copyDoc(doc), nil
}

func (s *DocumentStore) Delete(_ context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return entity.ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return entity.ErrNotFound
	}
	delete(c.docs, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// matches compares filter values with the string form of document fields.
func matches(doc entity.Document, filter map[string]string) bool {
	for k, want := range filter {
		v, ok := doc[k]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr {
			if s != want {
				return false
			}
			continue
		}
		if fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func copyDoc(d entity.Document) entity.Document {
	out := make(entity.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
