package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark47B/erp-portal/app/domain/repository"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
	"github.com/mark47B/erp-portal/app/infrastructure/storage/memory"
	"github.com/mark47B/erp-portal/app/infrastructure/storage/mongodb"
	"github.com/mark47B/erp-portal/app/infrastructure/transport"
	"github.com/mark47B/erp-portal/app/usecase"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the reference ERP REST API",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var store repository.DocumentStore
	switch cfg.API.Store {
	case "mongo":
		mongoClient, db, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("failed to init mongo store: %w", err)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = mongoClient.Disconnect(dctx)
		}()
		if err := mongodb.EnsureUniqueIndexes(ctx, db, usecase.UniqueFields()); err != nil {
			return fmt.Errorf("failed to init mongo store: %w", err)
		}
		store = mongodb.NewMongoDocumentStore(db)
	default:
		store = memory.NewDocumentStore()
	}

	svc := usecase.NewBackendService(store, log)
	if err := svc.Seed(ctx, cfg.API.AdminToken); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if cfg.API.AdminToken == "" {
		log.Warn("no admin token configured; only users created later can authenticate")
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.StartMetricsServer(gctx, cfg.Metrics.Addr)
		})
	}
	g.Go(func() error {
		return transport.StartHTTPServer(gctx, cfg.API.Addr, transport.NewAPIServer(svc, log), log)
	})

	err := g.Wait()
	log.Info("api stopped", zap.Error(err))
	return err
}
