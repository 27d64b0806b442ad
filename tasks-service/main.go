package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asad-bukhari/task-flow-organizer/internal/config"
	"github.com/asad-bukhari/task-flow-organizer/internal/db"
	"github.com/asad-bukhari/task-flow-organizer/internal/handlers"
	"github.com/asad-bukhari/task-flow-organizer/internal/logging"
	"github.com/asad-bukhari/task-flow-organizer/internal/middleware"
	"github.com/asad-bukhari/task-flow-organizer/internal/server"
	"github.com/asad-bukhari/task-flow-organizer/internal/service"
)

const janitorInterval = time.Minute

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the task API server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tasks table and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), envFile)
		},
	}

	root := &cobra.Command{
		Use:           "tasks-service",
		Short:         "Task management HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.AddCommand(serve, migrate)
	return root
}

// setup loads and validates config, builds the logger and connects to the database.
func setup(ctx context.Context, envFile string) (*config.Config, *logrus.Logger, *db.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbConn, err := db.Connect(connectCtx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, logger, dbConn, nil
}

func runMigrate(ctx context.Context, envFile string) error {
	_, logger, dbConn, err := setup(ctx, envFile)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(ctx); err != nil {
		return err
	}
	logger.WithField("driver", dbConn.Driver).Info("schema is up to date")
	return nil
}

func runServe(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, dbConn, err := setup(ctx, envFile)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(ctx); err != nil {
		return err
	}

	store, closeStore, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := handlers.NewWSHub(cfg.CORSOrigins, logger)
	defer hub.Close()

	handler := &handlers.Handler{
		Tasks:          service.NewTaskService(dbConn, service.WithPublisher(hub)),
		WSHub:          hub,
		DB:             dbConn,
		Logger:         logger,
		ProjectName:    cfg.ProjectName,
		Version:        cfg.Version,
		APIPrefix:      cfg.APIV1Str,
		RequestTimeout: cfg.RequestTimeout,
	}
	router := server.NewRouter(handler, server.Options{
		RateLimitStore:    store,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		CORS: middleware.CORSOptions{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowCredentials: cfg.AllowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		},
		Logger: logger,
	})
	logger.WithFields(logrus.Fields{
		"stages":             router.Stages(),
		"rate_limit_backend": cfg.RateLimitBackend,
		"rate_limit_enabled": cfg.RateLimitEnabled,
	}).Info("router ready")

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.Run(ctx, srv, cfg.ShutdownTimeout, logger)
}

// newRateLimitStore builds the configured store and starts its janitor. It
// returns a nil store when rate limiting is disabled.
func newRateLimitStore(ctx context.Context, cfg *config.Config) (middleware.Store, func(), error) {
	noop := func() {}
	if !cfg.RateLimitEnabled {
		return nil, noop, nil
	}

	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return middleware.NewRedisStore(client, cfg.RateLimitKeyPrefix), func() { client.Close() }, nil
	case config.BackendTokenBucket:
		store := middleware.NewTokenBucketStore()
		store.StartJanitor(ctx, janitorInterval)
		return store, noop, nil
	default:
		store := middleware.NewMemoryStore()
		store.StartJanitor(ctx, janitorInterval)
		return store, noop, nil
	}
}
