package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/statement-extract/bank-statement-api/internal/config"
	"github.com/statement-extract/bank-statement-api/internal/db"
	"github.com/statement-extract/bank-statement-api/internal/gemini"
	"github.com/statement-extract/bank-statement-api/internal/repository"
	"github.com/statement-extract/bank-statement-api/internal/router"
	"github.com/statement-extract/bank-statement-api/internal/services"
	"github.com/statement-extract/bank-statement-api/internal/storage"
	"github.com/statement-extract/bank-statement-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	database, err := db.NewSQLiteDB(cfg.DBFile)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer database.Close()

	if err := db.RunMigrations(cfg.DBFile); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", "error", err)
	}

	aiClient := gemini.NewClient(
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiBaseURL,
		cfg.MaxOutputTokens,
		cfg.Temperature,
		cfg.RequestTimeout,
		logger,
	)

	stmtRepo := repository.NewRepository(database)
	stmtService := services.NewService(stmtRepo, s3Storage, aiClient, logger)

	handler := router.NewRouter(stmtService, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
		// Statement extraction waits on the AI service, so the write timeout
		// has to cover the full upstream timeout
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "model", cfg.GeminiModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
