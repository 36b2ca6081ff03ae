package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"task-api.com/task-api/internal/auth"
	config "task-api.com/task-api/internal/configs"
	httpapi "task-api.com/task-api/internal/http"
	middleware "task-api.com/task-api/internal/http/middlewares"
	repository "task-api.com/task-api/internal/repositories"
	"task-api.com/task-api/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Migrates the schema, seeds an empty store and starts the task HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		database, err := config.NewDatabaseClient(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer closeDatabase(database)

		redisClient, err := config.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		taskRepo := repository.NewTaskRepository(database)

		if cfg.SeedOnStartup {
			seeder := services.NewSeedService(taskRepo, newLocker(redisClient, cfg.Redis))
			if _, err := seeder.SeedIfEmpty(ctx); err != nil {
				return err
			}
		}

		verifier, err := auth.NewVerifier(authOptions(cfg.Auth))
		if err != nil {
			return err
		}

		var limiterStore middleware.CounterStore = middleware.NewMemoryStore()
		if redisClient != nil {
			limiterStore = middleware.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		}

		e := httpapi.NewServer(httpapi.ServerOptions{
			Tasks:            services.NewTaskService(taskRepo),
			Verifier:         verifier,
			RateLimitStore:   limiterStore,
			RateLimit:        cfg.RateLimit,
			ProtectAllWrites: cfg.Auth.ProtectAllWrites,
			TrustedProxies:   cfg.TrustedProxies,
			OpenAPIEnabled:   cfg.OpenAPIEnabled,
			Logger:           slog.Default(),
		})

		serveErr := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.AppURL, "driver", cfg.Database.Driver)
			if err := e.Start(cfg.AppURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := withTimeout(context.Background(), cfg.ShutdownTimeoutSeconds)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown incomplete", "error", err)
		}

		slog.Info("HTTP server shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
