package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/api"
	"gwi.com/chattyagent/internal/auth"
	"gwi.com/chattyagent/internal/config"
	"gwi.com/chattyagent/internal/core"
	"gwi.com/chattyagent/internal/filestore"
	"gwi.com/chattyagent/internal/logging"
	"gwi.com/chattyagent/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize database store
	dbStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()
	logger.Info("Database ready", zap.String("driver", cfg.DatabaseDriver))

	gateway, closeGateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	backend, err := newFileBackend(ctx, cfg)
	if err != nil {
		return err
	}
	if backend == nil {
		logger.Warn("File storage not configured; uploads are disabled")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	apiHandler := api.NewAPIHandler(api.Services{
		Auth:     core.NewAuthService(dbStore, tokens, cfg.BcryptCost, logger),
		Projects: core.NewProjectService(dbStore, logger),
		Chats:    core.NewChatService(dbStore, gateway, logger),
		Files:    core.NewFileService(dbStore, backend, logger),
	}, cfg.Env, cfg.IsProduction(), logger)
	router := api.NewRouter(apiHandler, cfg.FrontendURL)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // uploads up to 10MB
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting gracefully")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(connectCtx, cfg.DatabaseURL, cfg.MongoDatabase)
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}

func newGateway(ctx context.Context, cfg config.Config) (core.Gateway, func(), error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return core.NewUnconfiguredGateway("gemini"), func() {}, nil
		}
		gw, err := core.NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() { _ = gw.Close() }, nil
	default:
		return core.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMTimeout), func() {}, nil
	}
}

// newFileBackend returns a nil interface when file storage is off.
func newFileBackend(ctx context.Context, cfg config.Config) (core.FileBackend, error) {
	switch cfg.FileStorage {
	case "s3":
		backend, err := filestore.NewS3(ctx, filestore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretAccessKey,
			Endpoint:  cfg.S3Endpoint,
			Timeout:   cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 file storage: %w", err)
		}
		return backend, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return filestore.NewOpenAIFiles(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMTimeout), nil
	default:
		return nil, nil
	}
}
