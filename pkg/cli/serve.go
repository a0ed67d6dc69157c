package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/relwatch/pkg/cli/config"
	controller "github.com/m-mizutani/relwatch/pkg/controller/http"
	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/infra/cache"
	"github.com/m-mizutani/relwatch/pkg/usecase"
	"github.com/m-mizutani/relwatch/pkg/utils/async"
	"github.com/m-mizutani/relwatch/pkg/utils/errutil"
)

func cmdServe() *cli.Command {
	var (
		serverCfg    config.Server
		githubCfg    config.GitHub
		reposCfg     config.Repositories
		dashboardCfg config.Dashboard
		storageCfg   config.Storage
		sentryCfg    config.Sentry
	)

	var flags []cli.Flag
	flags = append(flags, serverCfg.Flags()...)
	flags = append(flags, githubCfg.Flags()...)
	flags = append(flags, reposCfg.Flags()...)
	flags = append(flags, dashboardCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if githubCfg.Org == "" {
				return goerr.New("--github-org is required to gate access")
			}
			if err := dashboardCfg.Validate(); err != nil {
				return err
			}

			flush, err := sentryCfg.Configure()
			if err != nil {
				return err
			}
			defer flush()

			repos, err := reposCfg.Load()
			if err != nil {
				return err
			}

			logger.Info("Starting relwatch server",
				slog.String("addr", serverCfg.Addr),
				slog.String("org", githubCfg.Org),
				slog.Int("repositories", len(repos)),
				slog.String("storage", storageCfg.Backend),
			)

			tracker := githubCfg.NewTracker()
			client, err := githubCfg.NewClient(tracker)
			if err != nil {
				return err
			}

			store, closeStore, err := storageCfg.Open(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logger.Warn("Failed to close result store", "error", err)
				}
			}()

			var cacheOpts []cache.Option
			if store != nil {
				cacheOpts = append(cacheOpts, cache.WithStore(store))
			}
			resultCache := cache.NewMemory(cacheOpts...)
			if n, err := resultCache.Load(ctx); err != nil {
				errutil.Handle(ctx, "Failed to load persisted results", err)
			} else if n > 0 {
				logger.Info("Loaded persisted results", slog.Int("count", n))
			}

			// Create use cases
			dashboardUC := usecase.NewDashboard(client, resultCache, tracker, dashboardCfg.Options()...)
			accessUC := usecase.NewAccess(client, githubCfg.Org, dashboardCfg.AccessOptions()...)

			serverOpts := []controller.Option{
				controller.WithAddr(serverCfg.Addr),
				controller.WithRepositories(repos),
			}

			var creds interfaces.CredentialSource
			if githubCfg.HasServerCredential() {
				creds, err = githubCfg.CredentialSource(tracker)
				if err != nil {
					return err
				}
			}

			if serverCfg.WebhookSecret != "" {
				if creds == nil {
					return goerr.New("a server credential is required to refresh repositories from webhooks")
				}
				webhookUC := usecase.NewWebhook(dashboardUC, creds, repos)
				serverOpts = append(serverOpts, controller.WithWebhook(serverCfg.WebhookSecret, webhookUC))
			}

			// Create HTTP server with options
			server, err := controller.NewServer(ctx, dashboardUC, accessUC, serverOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			if serverCfg.WarmUp && creds != nil && len(repos) > 0 {
				async.Dispatch(ctx, warmUp(dashboardUC, creds, repos))
			}

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errutil.Handle(ctx, "HTTP server error", err)
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}
			if err := async.Wait(shutdownCtx); err != nil {
				logger.Warn("Background refreshes did not finish", "error", err)
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}

// warmUp fills the result cache with the server credential so the first
// dashboard request is served from cache
func warmUp(dashboardUC interfaces.DashboardUseCase, creds interfaces.CredentialSource, repos []model.RepositoryRef) func(ctx context.Context) error {
	return async.WithTimeout(5*time.Minute, func(ctx context.Context) error {
		cred, err := creds.Credential(ctx)
		if err != nil {
			return goerr.Wrap(err, "failed to get server credential for warm-up")
		}

		start := time.Now()
		results, err := dashboardUC.FetchAll(ctx, cred, repos, false)
		if err != nil {
			return goerr.Wrap(err, "warm-up failed")
		}

		var failed int
		for _, r := range results {
			if r.IsError() {
				failed++
			}
		}
		ctxlog.From(ctx).Info("Cache warm-up complete",
			slog.Int("repositories", len(results)),
			slog.Int("failed", failed),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	})
}
