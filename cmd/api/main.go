package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/directorscut/internal/api"
	"github.com/bobarin/directorscut/internal/app"
	"github.com/bobarin/directorscut/internal/config"
	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/logging"
	"github.com/bobarin/directorscut/internal/queue"
	"github.com/bobarin/directorscut/internal/worker"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("info", "console")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("starting directorscut api")

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancelMigrate()
	log.Info().Msg("connected to database")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer q.Close()
	log.Info().Msg("connected to redis queue")

	// Scene state and subscribers live in this process, so the API and the
	// worker must share one pipeline.
	pipeline, err := app.Build(context.Background(), cfg, database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}

	handler := api.NewHandler(pipeline, database, q)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Info().Msg("API key authentication enabled")
	} else {
		log.Warn().Msg("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.WorkerEnabled {
		w := worker.New(q, database, pipeline)
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	} else {
		log.Warn().Msg("worker disabled, queued jobs will not run in this process")
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
