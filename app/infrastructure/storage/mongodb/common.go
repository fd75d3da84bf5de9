package mongodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mark47B/erp-portal/app/config"
)

const (
	appName               = "erp-api"
	defaultConnectTimeout = 5 * time.Second
)

// Connect opens the database named in cfg and waits until the server answers a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(timeout)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("mongo ping %s: %w", cfg.Database, err)
	}
	return client, client.Database(cfg.Database), nil
}

// EnsureUniqueIndexes creates one unique index per collection field. Documents
// without the field, or with an empty value, are left out of the index.
func EnsureUniqueIndexes(ctx context.Context, db *mongo.Database, unique map[string][]string) error {
	for collection, models := range uniqueIndexModels(unique) {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func uniqueIndexModels(unique map[string][]string) map[string][]mongo.IndexModel {
	out := make(map[string][]mongo.IndexModel, len(unique))
	for collection, fields := range unique {
		fields = append([]string(nil), fields...)
		sort.Strings(fields)
		for _, field := range fields {
			out[collection] = append(out[collection], mongo.IndexModel{
				Keys: bson.D{{Key: field, Value: 1}},
				Options: options.Index().
					SetName("uniq_" + field).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string", "$gt": ""}}),
			})
		}
	}
	return out
}
