package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark47B/erp-portal/app/domain/repository"
	"github.com/mark47B/erp-portal/app/infrastructure/apiclient"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
	etcdStorage "github.com/mark47B/erp-portal/app/infrastructure/storage/etcd"
	"github.com/mark47B/erp-portal/app/infrastructure/storage/memory"
	redisStorage "github.com/mark47B/erp-portal/app/infrastructure/storage/redis"
	"github.com/mark47B/erp-portal/app/infrastructure/transport"
	"github.com/mark47B/erp-portal/app/usecase"
)

var portalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Run a query cache node with the CacheAdmin gRPC service",
	RunE:  runPortal,
}

func runPortal(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	tokens := memory.NewTokenStore(cfg.Portal.Token)
	api, err := apiclient.New(cfg.Portal.APIURL, tokens, cfg.Portal.RequestTimeout, log)
	if err != nil {
		return err
	}

	qcfg := usecase.QueryClientConfig{
		StaleTime: cfg.Query.StaleTime,
		GCTime:    cfg.Query.GCTime,
		Retry: usecase.RetryPolicy{
			MaxRetries:  cfg.Query.MaxRetries,
			ShouldRetry: usecase.RetryTransient,
			BaseDelay:   cfg.Query.RetryBaseDelay,
			MaxDelay:    cfg.Query.RetryMaxDelay,
		},
		Logger: log,
	}

	var redisClient *redis.Client
	if cfg.Portal.Persist || cfg.Portal.Bus == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connect error: %w", err)
		}
	}
	if cfg.Portal.Persist {
		qcfg.Persister = redisStorage.NewRedisQueryPersister(redisClient)
	}

	var bus repository.InvalidationBus
	switch cfg.Portal.Bus {
	case "redis":
		if bus, err = redisStorage.NewRedisInvalidationBus(redisClient, cfg.Redis.Channel, log); err != nil {
			return err
		}
	case "etcd":
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("err connect to etcd: %w", err)
		}
		defer etcdClient.Close()
		bus = etcdStorage.NewETCDInvalidationBus(etcdClient, cfg.Etcd.Prefix, cfg.Etcd.LeaseTTL, log)
	}
	qcfg.Bus = bus

	client := usecase.NewQueryClient(qcfg)
	defer client.Close()

	portal := usecase.NewPortal(client, usecase.APIs{
		Users:         api.Users(),
		Teams:         api.Teams(),
		Employees:     api.Employees(),
		Invitations:   api.Invitations(),
		Subscriptions: api.Subscriptions(),
		ProjectTasks:  api.ProjectTasks(),
		Facturations:  api.Facturations(),
		Onboarding:    api.Onboarding(),
	}, tokens)

	g, gctx := errgroup.WithContext(ctx)
	if bus != nil {
		syncer := usecase.NewInvalidationSync(client, bus, log)
		g.Go(func() error {
			return syncer.Run(gctx)
		})
	}
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.StartMetricsServer(gctx, cfg.Metrics.Addr)
		})
	}
	g.Go(func() error {
		warmUp(gctx, portal)
		return nil
	})
	g.Go(func() error {
		return transport.StartgRPCServer(gctx, cfg.Portal.GRPCAddr, transport.NewgRPCServer(portal, log), log)
	})

	err = g.Wait()
	log.Info("portal stopped", zap.String("origin", client.Origin()), zap.Error(err))
	return err
}

// warmUp prefetches the reads every portal page needs.
func warmUp(ctx context.Context, p *usecase.Portal) {
	if err := usecase.PrefetchQuery(ctx, p.Client, p.Subscriptions.PlansOptions()); err != nil {
		log.Warn("prefetch plans", zap.Error(err))
	}
	if err := usecase.PrefetchQuery(ctx, p.Client, p.Users.MeOptions()); err != nil {
		log.Warn("prefetch current user", zap.Error(err))
	}
}
