package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
)

const (
	keyPrefix = "erpq:"
	scanCount = 100
)

type RedisQueryPersister struct {
	client *redis.Client
}

func NewRedisQueryPersister(rdb *redis.Client) repository.QueryPersister {
	return &RedisQueryPersister{client: rdb}
}

func persistKey(hash string) string {
	return keyPrefix + hash
}

func (r *RedisQueryPersister) Restore(ctx context.Context, hash string) ([]byte, time.Time, bool, error) {
	vals, err := r.client.HMGet(ctx, persistKey(hash), "data", "updated_at").Result()
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("redis hmget: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, time.Time{}, false, nil
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, time.Time{}, false, fmt.Errorf("redis persisted data of %s has type %T", hash, vals[0])
	}
	updatedAt, err := parseUnixNano(vals[1])
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("redis persisted updated_at of %s: %w", hash, err)
	}
	return []byte(data), updatedAt, true, nil
}

func parseUnixNano(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

func (r *RedisQueryPersister) Persist(ctx context.Context, hash string, data []byte, updatedAt time.Time, ttl time.Duration) error {
	key := persistKey(hash)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "data", data, "updated_at", strconv.FormatInt(updatedAt.UnixNano(), 10))
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		} else {
			p.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis persist %s: %w", hash, err)
	}
	return nil
}

// RemovePrefix deletes every persisted query whose key starts with prefixHash.
func (r *RedisQueryPersister) RemovePrefix(ctx context.Context, prefixHash string) error {
	pattern := scanPattern(prefixHash)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("err redis scan: %w", err)
		}
		var stale []string
		for _, key := range keys {
			hash, ok := strings.CutPrefix(key, keyPrefix)
			if ok && entity.HashHasPrefix(hash, prefixHash) {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			if err := r.client.Del(ctx, stale...).Err(); err != nil {
				return fmt.Errorf("err redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// scanPattern narrows the SCAN to keys sharing the prefix's leading text;
// the exact token-wise match is checked on the results.
func scanPattern(prefixHash string) string {
	open := strings.TrimSuffix(prefixHash, "]")
	if open == "[" || open == "" {
		return keyPrefix + "*"
	}
	return keyPrefix + globEscape(open) + "*"
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
