package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bellanapoli/bellad/internal/archive"
	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/server"
	"github.com/bellanapoli/bellad/internal/server/handler"
	"github.com/bellanapoli/bellad/internal/server/ws"
	"github.com/bellanapoli/bellad/internal/service"
)

// shutdownTimeout bounds how long the HTTP server may take to drain
// in-flight requests once the context is cancelled.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the HTTP API and the websocket hub. Pool state updates
// reach the hub over the Redis event bus, so a separate poller process keeps
// working.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// PollerMode runs the background pool watcher alone: it keeps a refresh loop
// alive for every market with an escrow contract, publishing derived states
// on the event bus, and runs the archive cron when enabled.
func (a *App) PollerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poller mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPoolWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the HTTP API, the websocket hub, the pool watcher, and the
// archive cron in a single process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startPoolWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer builds the service layer, handlers, and websocket hub, and
// adds the listener plus its shutdown watcher to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.BetStore, deps.SnapshotCache, deps.AggregateCache,
		deps.Poller, deps.Reconciler, a.logger,
	)
	betSvc := service.NewBetService(
		deps.MarketStore, deps.BetStore, deps.SnapshotCache, deps.AuditStore,
		deps.Poller, deps.Reconciler, a.logger,
	)
	commentSvc := service.NewCommentService(deps.MarketStore, deps.CommentStore, a.logger)
	adminSvc := service.NewAdminService(
		deps.MarketStore, deps.PoolWriter, deps.LockManager, deps.AuditStore,
		deps.Notifier, deps.Poller, a.cfg.Settlement.LockTTL.Duration, a.logger,
	)

	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Admin.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  time.Minute,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Markets:  handler.NewMarketHandler(marketSvc, a.logger),
			Bets:     handler.NewBetHandler(betSvc, a.logger),
			Comments: handler.NewCommentHandler(commentSvc, a.logger),
			Admin:    handler.NewAdminHandler(marketSvc, adminSvc, deps.AuditStore, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startPoolWatcher adds the goroutine that keeps one poller subscription
// alive per market with a deployed escrow contract. It rescans on the
// aggregate cadence so newly deployed pools get picked up and settled or
// cancelled markets eventually release their loops.
func (a *App) startPoolWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		logger := a.logger.With(slog.String("component", "pool_watcher"))

		// unsubs holds the release function for each watched address.
		unsubs := make(map[string]func())
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()

		ticker := time.NewTicker(a.cfg.Poll.AggregateInterval.Duration)
		defer ticker.Stop()

		for {
			a.syncWatchedPools(ctx, deps, unsubs, logger)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// syncWatchedPools reconciles the watched set against the database and the
// factory contract: new pools get a subscription, pools of settled or
// cancelled markets are released.
func (a *App) syncWatchedPools(ctx context.Context, deps *Dependencies, unsubs map[string]func(), logger *slog.Logger) {
	want := make(map[string]bool)

	for _, status := range []domain.MarketStatus{
		domain.MarketStatusActive,
		domain.MarketStatusPaused,
	} {
		markets, err := deps.MarketStore.ListByStatus(ctx, status, domain.ListOpts{})
		if err != nil {
			logger.ErrorContext(ctx, "listing markets failed",
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, m := range markets {
			if m.HasPool() {
				want[m.PoolAddress] = true
			}
		}
	}

	// The factory is the on-chain source of deployed pools; include any the
	// database does not know about yet so their state is ready the moment an
	// admin attaches them.
	pools, err := deps.FactoryReader.Pools(ctx)
	if err != nil {
		logger.WarnContext(ctx, "factory enumeration failed",
			slog.String("error", err.Error()),
		)
	}
	for _, addr := range pools {
		want[addr] = true
	}

	for addr := range want {
		if _, ok := unsubs[addr]; ok {
			continue
		}
		_, unsub, err := deps.Poller.Subscribe(addr)
		if err != nil {
			logger.WarnContext(ctx, "pool subscription failed",
				slog.String("pool", addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		unsubs[addr] = unsub
		logger.InfoContext(ctx, "watching pool", slog.String("pool", addr))
	}

	for addr, unsub := range unsubs {
		if want[addr] {
			continue
		}
		unsub()
		delete(unsubs, addr)
		logger.InfoContext(ctx, "released pool", slog.String("pool", addr))
	}
}

// startArchiver adds the archive cron goroutine when archival is enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Exporter == nil {
		return
	}

	archiver := archive.NewArchiver(deps.Exporter, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		err := archiver.RunCron(ctx, a.cfg.Archive.Cron)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})
}
