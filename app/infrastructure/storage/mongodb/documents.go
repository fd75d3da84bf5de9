package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

// mongoDocumentStore maps Document.id onto _id.
type mongoDocumentStore struct {
	db *mongo.Database
}

func NewMongoDocumentStore(db *mongo.Database) repository.DocumentStore {
	return &mongoDocumentStore{db: db}
}

func (s *mongoDocumentStore) Insert(ctx context.Context, collection string, doc entity.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("insert into %s: %w: missing id", collection, entity.ErrValidation)
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, toBSON(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %s/%s: %w", collection, id, entity.ErrConflict)
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *mongoDocumentStore) Get(ctx context.Context, collection, id string) (entity.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (s *mongoDocumentStore) Find(ctx context.Context, collection string, filter map[string]string) ([]entity.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(collection).Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []entity.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	return out, cur.Err()
}

func (s *mongoDocumentStore) Update(ctx context.Context, collection, id string, patch entity.Document) (entity.Document, error) {
	set := bson.M{}
	for k, v := range patch {
		if k == "id" || k == "_id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return s.Get(ctx, collection, id)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var raw bson.M
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (s *mongoDocumentStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// buildFilter turns string equality filters into a query. Values that parse
// as numbers or booleans also match fields stored with those types.
func buildFilter(filter map[string]string) bson.M {
	out := bson.M{}
	for k, v := range filter {
		field := k
		if k == "id" {
			field = "_id"
		}
		candidates := bson.A{v}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			candidates = append(candidates, n, int32(n), float64(n))
		}
		if b, err := strconv.ParseBool(v); err == nil {
			candidates = append(candidates, b)
		}
		if len(candidates) == 1 {
			out[field] = v
		} else {
			out[field] = bson.M{"$in": candidates}
		}
	}
	return out
}

func toBSON(doc entity.Document) bson.M {
	out := bson.M{"_id": doc.ID()}
	for k, v := range doc {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func fromBSON(raw bson.M) entity.Document {
	out := entity.Document{}
	for k, v := range raw {
		if k == "_id" {
			out["id"] = fmt.Sprint(v)
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

// normalize converts nested BSON containers into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalize(e)
		}
		return s
	case int32:
		return int64(t)
	}
	return v
}
