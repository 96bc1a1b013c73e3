package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/notevault/internal/config"
	"github.com/and161185/notevault/internal/limiter"
	"github.com/and161185/notevault/internal/repository"
	"github.com/and161185/notevault/internal/repository/memory"
	"github.com/and161185/notevault/internal/repository/postgres"
	grpcserver "github.com/and161185/notevault/internal/server/grpc"
	"github.com/and161185/notevault/internal/service"
	"github.com/and161185/notevault/internal/sharetoken"
)

type app struct {
	server *grpcserver.Server
	tokens *service.Tokens
	shares *sharetoken.Service
	lim    limiter.Limiter
	log    *zap.Logger
}

// build wires repositories, services and the handler set. db may be nil when
// no backend uses PostgreSQL.
func build(cfg *config.Config, db *postgres.DB, log *zap.Logger) (*app, error) {
	if cfg.NeedsDB() && db == nil {
		return nil, errors.New("postgres backend selected but no database")
	}

	var (
		wsRepo  repository.WorkspaceRepository
		docRepo repository.DocumentRepository
		store   sharetoken.Store
	)
	switch cfg.Storage {
	case config.BackendMemory:
		wsRepo, docRepo, store = memory.NewWorkspaces(), memory.NewDocuments(), sharetoken.NewMemoryStore()
	default:
		wsRepo, docRepo, store = postgres.NewWorkspaceRepo(db), postgres.NewDocumentRepo(db), postgres.NewShareTokenRepo(db)
	}

	var lim limiter.Limiter
	switch cfg.Limiter {
	case config.BackendMemory:
		lim = limiter.NewMemory(cfg.RateWindow, cfg.RateLimit)
	default:
		lim = limiter.NewPGWithQuerier(db.Pool, cfg.RateWindow, cfg.RateLimit)
	}

	st := sharetoken.NewService(store, lim,
		sharetoken.WithDefaultTTL(cfg.ShareDefaultTTL),
		sharetoken.WithMaxTTL(cfg.ShareMaxTTL),
		sharetoken.WithStoreTimeout(cfg.StoreTimeout),
		sharetoken.WithLogger(log.Named("sharetoken")),
	)
	ws := service.NewWorkspaceService(wsRepo)
	docs := service.NewDocumentService(docRepo, ws, cfg.MaxBatch)
	shares := service.NewShareService(st, docs, docRepo)

	return &app{
		server: grpcserver.New(ws, docs, shares, log),
		tokens: service.NewTokens([]byte(cfg.JWTKey)),
		shares: st,
		lim:    lim,
		log:    log,
	}, nil
}

// janitor purges expired tokens and stale limiter windows until ctx ends.
func (a *app) janitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweepOnce(ctx)
		}
	}
}

func (a *app) sweepOnce(ctx context.Context) {
	if n, err := a.shares.Sweep(ctx); err != nil {
		a.log.Warn("token sweep", zap.Error(err))
	} else if n > 0 {
		a.log.Info("expired tokens purged", zap.Int64("count", n))
	}
	if p, ok := a.lim.(limiter.Pruner); ok {
		if _, err := p.Prune(ctx); err != nil {
			a.log.Warn("limiter prune", zap.Error(err))
		}
	}
}
