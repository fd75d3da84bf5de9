package repository

import (
	"context"
	"time"
)

// QueryPersister keeps query results outside the process, addressed by key hash.
type QueryPersister interface {
	// Restore returns found=false when nothing is stored under hash.
	Restore(ctx context.Context, hash string) (data []byte, updatedAt time.Time, found bool, err error)
	Persist(ctx context.Context, hash string, data []byte, updatedAt time.Time, ttl time.Duration) error
	RemovePrefix(ctx context.Context, prefixHash string) error
}

// Invalidation is a key-prefix invalidation broadcast between query clients.
type Invalidation struct {
	Origin string `json:"origin"`
	Prefix string `json:"prefix"`
}

// FullInvalidation is the hash of the empty key; it matches every query.
const FullInvalidation = "[]"

type InvalidationBus interface {
	Publish(ctx context.Context, inv Invalidation) error
	// Subscribe blocks, delivering messages to handle until ctx is done. When
	// messages may have been missed it delivers a FullInvalidation instead.
	Subscribe(ctx context.Context, handle func(Invalidation)) error
}
