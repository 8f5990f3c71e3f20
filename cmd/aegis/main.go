package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-identity/aegis/cmd/aegis/cli"
	"github.com/aegis-identity/aegis/internal/app"
	"github.com/aegis-identity/aegis/internal/auth"
	"github.com/aegis-identity/aegis/internal/authz"
	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/platform/cache"
	"github.com/aegis-identity/aegis/internal/platform/db"
	"github.com/aegis-identity/aegis/internal/policy"
	"github.com/aegis-identity/aegis/internal/shared"
	"github.com/aegis-identity/aegis/internal/uiconfig"
	"github.com/aegis-identity/aegis/internal/users"
	"github.com/aegis-identity/aegis/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	usersRepo := users.NewRepository(dbpool)
	policyRepo := policy.NewRepository(dbpool)
	catalogRepo := catalog.NewRepository(dbpool)
	pagesRepo := uiconfig.NewRepository(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	matcher := catalog.NewMatcherWithTTL(catalogRepo, cfg.CatalogCacheTTL)
	engine := policy.NewEngine(policyRepo, logger)
	resolver := users.NewSessionResolver()
	manager := authz.NewManager(matcher, resolver, policyRepo, engine, logger)
	builder := authz.NewBuilder(usersRepo, policyRepo, pagesRepo, catalogRepo)

	catalogService := catalog.NewService(catalogRepo, matcher)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	policyService := policy.NewService(policyRepo, usersRepo, logger)
	policyHandler := policy.NewHandler(logger, policyService, resolver)

	uiService := uiconfig.NewService(pagesRepo)
	uiHandler := uiconfig.NewHandler(logger, uiService)

	authzHandler := authz.NewHandler(logger, builder, resolver, uiService)
	internalHandler := authz.NewInternalHandler(logger, matcher, policyRepo, catalogRepo, engine, builder, cfg.InternalToken)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		AuthHandler:     authHandler,
		AuthzHandler:    authzHandler,
		InternalHandler: internalHandler,
		CatalogHandler:  catalogHandler,
		PolicyHandler:   policyHandler,
		UIConfigHandler: uiHandler,
		JobHandler:      jobHandler,
		Manager:         manager,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles `aegis jobs trigger <type>` and `aegis jobs stats`
// without booting the HTTP server.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: aegis jobs trigger <type> | aegis jobs stats")
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: aegis jobs trigger <type>")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("jobs: unknown subcommand %s", args[0])
	}
}
