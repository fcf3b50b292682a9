// SPDX-License-Identifier: Apache-2.0

// Package app wires the configuration, storage, transport and service layers
// together and runs the selected mode: the long-running daemon (periodic sync
// plus the HTTP lookup endpoint), a single sync cycle, or a one-shot URL
// check.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urlguard/urlguard/internal/adapter"
	"github.com/urlguard/urlguard/internal/config"
	handlerhttp "github.com/urlguard/urlguard/internal/handler/http"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/service"
	"github.com/urlguard/urlguard/internal/store"
)

// App holds the wired application components.
type App struct {
	cfg *config.StructuredConfig
	log *logger.Logger

	db     *store.DB
	sync   service.SyncService
	lookup service.LookupService
	job    service.SyncJob
}

// New builds every layer from the configuration: the SQL repository and its
// migrations, the in-memory prefix store and full-hash cache, the remote
// adapter, the two services and the background job.
func New(ctx context.Context, cfg *config.StructuredConfig, log *logger.Logger) (*App, error) {
	db, err := store.Connect(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	repo := store.NewRepository(db, log)
	prefixes := store.NewPrefixStore(repo, log)
	cache := store.NewHashCache()

	serverAdapter, err := adapter.NewHTTPServerAdapter(cfg.API, cfg.App, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build server adapter: %w", err)
	}

	syncSvc := service.NewSyncService(serverAdapter, prefixes, repo, cache, cfg.ThreatLists(), cfg.Sync, log)
	lookupSvc := service.NewLookupService(prefixes, cache, serverAdapter, syncSvc, log)

	return &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		sync:   syncSvc,
		lookup: lookupSvc,
		job:    service.NewSyncJob(syncSvc, log),
	}, nil
}

// Run bootstraps the local state and executes the configured mode. It returns
// when ctx is cancelled or the one-shot mode finishes.
func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()

	if err := a.sync.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	switch {
	case a.cfg.Mode.CheckURL != "":
		return a.runCheckURL(ctx, a.cfg.Mode.CheckURL)
	case a.cfg.Mode.Onetime:
		return a.sync.SyncOnce(ctx)
	default:
		return a.runDaemon(ctx)
	}
}

// runCheckURL syncs once if the lists have never been populated, then prints
// the verdict for one URL to stdout as JSON.
func (a *App) runCheckURL(ctx context.Context, rawURL string) error {
	if !a.hasSyncedLists() {
		a.log.Info().Msg("threat lists are empty, running an initial sync")
		if err := a.sync.SyncOnce(ctx); err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
	}

	result, err := a.lookup.LookupURL(ctx, rawURL)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runDaemon starts the periodic sync job and, if configured, the HTTP lookup
// endpoint, and blocks until ctx is cancelled.
func (a *App) runDaemon(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.job.Start(gctx, a.cfg.Sync.Interval)
	defer a.job.Stop()

	if addr := a.cfg.Server.HTTPAddress; addr != "" {
		handler := handlerhttp.NewHandler(a.lookup, a.sync, a.log)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler.Init(),
			ReadHeaderTimeout: a.cfg.Server.RequestTimeout,
		}

		g.Go(func() error {
			a.log.Info().Str("address", addr).Msg("launching HTTP server")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	err := g.Wait()
	a.log.Info().Msg("shut down gracefully")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) hasSyncedLists() bool {
	for _, st := range a.sync.Statuses() {
		if st.HasState {
			return true
		}
	}
	return false
}
