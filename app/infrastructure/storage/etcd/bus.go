package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/repository"
)

const (
	DefaultPrefix   = "/erp/invalidations/"
	DefaultLeaseTTL = 30 * time.Second
)

// ETCDInvalidationBus publishes each invalidation as a short-lived key under a
// prefix; subscribers watch the prefix. The lease keeps the keyspace from growing.
// A resubscription resumes after the last revision seen, so nothing published
// while the watch was down is skipped.
type ETCDInvalidationBus struct {
	client   *clientv3.Client
	prefix   string
	leaseTTL time.Duration
	log      *zap.Logger

	// rev is the last store revision whose events were all delivered.
	rev atomic.Int64
}

func NewETCDInvalidationBus(cli *clientv3.Client, prefix string, leaseTTL time.Duration, log *zap.Logger) repository.InvalidationBus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if leaseTTL < time.Second {
		leaseTTL = DefaultLeaseTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ETCDInvalidationBus{client: cli, prefix: prefix, leaseTTL: leaseTTL, log: log.Named("etcd-bus")}
}

func messageKey(prefix, origin string) string {
	return prefix + origin + "/" + uuid.NewString()
}

func (b *ETCDInvalidationBus) Publish(ctx context.Context, inv repository.Invalidation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	lease, err := b.client.Grant(ctx, int64(b.leaseTTL.Seconds()))
	if err != nil {
		return fmt.Errorf("err grant lease: %w", err)
	}
	if _, err := b.client.Put(ctx, messageKey(b.prefix, inv.Origin), string(payload), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("etcd put invalidation: %w", err)
	}
	return nil
}

func (b *ETCDInvalidationBus) Subscribe(ctx context.Context, handle func(repository.Invalidation)) error {
	wch := b.client.Watch(clientv3.WithRequireLeader(ctx), b.prefix, b.watchOptions()...)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-wch:
			if !ok {
				return fmt.Errorf("etcd watch on %s closed", b.prefix)
			}
			if err := b.process(resp, handle); err != nil {
				return err
			}
		}
	}
}

func (b *ETCDInvalidationBus) watchOptions() []clientv3.OpOption {
	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithFilterDelete(),
		clientv3.WithCreatedNotify(),
		clientv3.WithProgressNotify(),
	}
	if rev := b.rev.Load(); rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	return opts
}

func (b *ETCDInvalidationBus) process(resp clientv3.WatchResponse, handle func(repository.Invalidation)) error {
	if resp.CompactRevision != 0 {
		b.log.Warn("invalidations compacted away, invalidating everything",
			zap.Int64("resume_revision", b.rev.Load()+1),
			zap.Int64("compact_revision", resp.CompactRevision))
		handle(repository.Invalidation{Prefix: repository.FullInvalidation})
		b.rev.Store(resp.CompactRevision - 1)
		return fmt.Errorf("etcd watch on %s: %w", b.prefix, rpctypes.ErrCompacted)
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("etcd watch: %w", err)
	}
	if resp.Created && b.rev.Load() == 0 {
		b.rev.Store(resp.Header.Revision)
	}
	if resp.IsProgressNotify() {
		b.advance(resp.Header.Revision)
	}
	for _, ev := range resp.Events {
		inv, err := decodeInvalidation(ev.Kv.Value)
		if err != nil {
			b.log.Warn("dropping malformed invalidation", zap.ByteString("key", ev.Kv.Key), zap.Error(err))
		} else {
			handle(inv)
		}
		b.advance(ev.Kv.ModRevision)
	}
	return nil
}

func (b *ETCDInvalidationBus) advance(rev int64) {
	for {
		cur := b.rev.Load()
		if rev <= cur || b.rev.CompareAndSwap(cur, rev) {
			return
		}
	}
}

func decodeInvalidation(payload []byte) (repository.Invalidation, error) {
	var inv repository.Invalidation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return inv, fmt.Errorf("decode invalidation: %w", err)
	}
	if inv.Prefix == "" {
		return inv, fmt.Errorf("decode invalidation: empty prefix")
	}
	return inv, nil
}
