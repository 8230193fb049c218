package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-lims/meridian-lims/internal/addresses"
	"github.com/meridian-lims/meridian-lims/internal/app"
	"github.com/meridian-lims/meridian-lims/internal/auth"
	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/platform/cache"
	"github.com/meridian-lims/meridian-lims/internal/platform/db"
	"github.com/meridian-lims/meridian-lims/internal/projects"
	"github.com/meridian-lims/meridian-lims/internal/rbac"
	"github.com/meridian-lims/meridian-lims/internal/samples"
	"github.com/meridian-lims/meridian-lims/internal/users"
	"github.com/meridian-lims/meridian-lims/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	guard := authz.Guard{Logger: logger}
	ranks := cfg.Ranks()

	authRepo := auth.NewRepository(pool)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	denylist := auth.NewDenylist(redisClient)
	authService := auth.NewService(logger, authRepo, tokens, denylist)
	authHandler := auth.NewHandler(logger, authService)

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo)
	rolesHandler := rbac.NewHandler(logger, rbacService, guard)

	if _, err := rbacService.EnsurePermissions(ctx, rbac.CorePermissions()); err != nil {
		logger.Error("bootstrap permission catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := rbacService.EnsureRootRole(ctx, cfg.RootRoleRank); err != nil {
		logger.Error("bootstrap root role", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, guard)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, rbacRepo, ranks)
	projectsHandler := projects.NewHandler(logger, projectsService)

	addressesRepo := addresses.NewRepository(pool)
	addressesService := addresses.NewService(addressesRepo, projectsRepo, ranks)
	addressesHandler := addresses.NewHandler(logger, addressesService)

	samplesRepo := samples.NewRepository(pool)
	samplesService := samples.NewService(samplesRepo, ranks)
	samplesHandler := samples.NewHandler(logger, samplesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthService:      authService,
		AuthHandler:      authHandler,
		RolesHandler:     rolesHandler,
		UsersHandler:     usersHandler,
		ProjectsHandler:  projectsHandler,
		AddressesHandler: addressesHandler,
		SamplesHandler:   samplesHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
