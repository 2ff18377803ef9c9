package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bracketlab/bracket-engine/brackets"
	"github.com/bracketlab/bracket-engine/config"
	"github.com/bracketlab/bracket-engine/db"
	"github.com/bracketlab/bracket-engine/engine"
	"github.com/bracketlab/bracket-engine/handlers"
	"github.com/bracketlab/bracket-engine/middleware"
	"github.com/bracketlab/bracket-engine/repositories"
	api "github.com/bracketlab/bracket-engine/routes"
	"github.com/bracketlab/bracket-engine/services"
	"github.com/bracketlab/bracket-engine/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const schedulerInterval = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.Bool("demo_mode", cfg.DemoMode))

	var (
		competitionRepo repositories.CompetitionRepository
		entrantRepo     repositories.EntrantRepository
		nodeRepo        repositories.NodeRepository
		txRunner        repositories.TxRunner
	)
	if cfg.DemoMode {
		store := repositories.NewMemoryStore()
		competitionRepo = store.Competitions()
		entrantRepo = store.Entrants()
		nodeRepo = store.Nodes()
		txRunner = store
		logger.Info("running against in-memory store")
	} else {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			}
		}()
		logger.Info("database connection established")

		competitionRepo = repositories.NewPostgresCompetitionRepository(dbConn)
		entrantRepo = repositories.NewPostgresEntrantRepository(dbConn)
		nodeRepo = repositories.NewPostgresNodeRepository(dbConn)
		txRunner = repositories.NewTxRunner(dbConn)
	}

	var archiver *storage.Archiver
	if cfg.ArchiveConfigured() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewArchiver(uploader, logger)
		logger.Info("competition archiver initialized", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("archive export disabled, R2 credentials not configured")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()

	eng := engine.New(logger)
	locks := engine.NewCompetitionLocks()

	competitionService := services.NewCompetitionService(
		competitionRepo, entrantRepo, nodeRepo, txRunner, eng, wsHub, logger)
	resultService := services.NewResultService(
		competitionService, competitionRepo, entrantRepo, nodeRepo,
		txRunner, eng, locks, wsHub, archiver, logger)
	logger.Info("services initialized")

	// Registration windows close on a timer, not on request traffic.
	go func() {
		ticker := time.NewTicker(schedulerInterval)
		defer ticker.Stop()
		logger.Info("registration scheduler started", slog.Duration("interval", schedulerInterval))

		if _, err := competitionService.CloseExpiredRegistrations(context.Background()); err != nil {
			logger.Error("scheduler: initial run failed", slog.Any("error", err))
		}
		for range ticker.C {
			closed, err := competitionService.CloseExpiredRegistrations(context.Background())
			if err != nil {
				logger.Error("scheduler: periodic run failed", slog.Any("error", err))
				continue
			}
			if closed > 0 {
				logger.Info("scheduler: registrations closed", slog.Int("count", closed))
			}
		}
	}()

	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	competitionHandler := handlers.NewCompetitionHandler(competitionService)
	resultHandler := handlers.NewResultHandler(resultService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)

	router := chi.NewRouter()
	api.SetupRoutes(router, auth, competitionHandler, resultHandler, webSocketHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
