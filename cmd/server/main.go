package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irregularchat/speech-memorization/internal/api"
	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/provider"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/internal/session"
	"github.com/irregularchat/speech-memorization/internal/storage/sqlite"
	"github.com/irregularchat/speech-memorization/internal/websocket"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting speech practice server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Open the daily practice database
	db, err := sqlite.NewDB(cfg.Storage.SQLiteBasePath, log)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	attemptStorage, err := sqlite.NewAttemptStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize attempt storage", logger.Error(err))
		os.Exit(1)
	}
	missedWordStorage, err := sqlite.NewMissedWordStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize missed-word storage", logger.Error(err))
		os.Exit(1)
	}

	// Build the provider registry from configuration
	registry := provider.NewRegistry(cfg.Dispatch.MaxErrorCount, log)
	for _, pc := range cfg.Providers {
		p, err := provider.New(pc, log)
		if err != nil {
			log.Error("Failed to create provider",
				logger.String("id", pc.ID),
				logger.Error(err))
			os.Exit(1)
		}
		if err := registry.Register(p, pc.Priority, pc.RateLimitPerMinute, pc.Enabled); err != nil {
			log.Error("Failed to register provider",
				logger.String("id", pc.ID),
				logger.Error(err))
			os.Exit(1)
		}
	}
	dispatcher := provider.NewDispatcher(
		registry,
		time.Duration(cfg.Dispatch.RequestTimeoutSecs)*time.Second,
		log,
	)

	scorer := scoring.NewScorer(scoring.Config{
		PerfectThreshold:  cfg.Scoring.PerfectThreshold,
		GoodThreshold:     cfg.Scoring.GoodThreshold,
		PartialThreshold:  cfg.Scoring.PartialThreshold,
		RetryThreshold:    cfg.Scoring.RetryThreshold,
		MaxSkippableWords: cfg.Scoring.MaxSkippableWords,
	}, log)

	// WebSocket hub for practice events and audio ingest
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	sessionManager := session.NewManager(cfg, dispatcher, scorer, attemptStorage, missedWordStorage, wsServer, log)
	wsServer.SetMessageHandler(sessionManager)
	wsServer.SetBinaryHandler(sessionManager)

	handler := api.NewHandler(sessionManager, registry, cfg, log, wsServer, attemptStorage, missedWordStorage)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	log.Info("Stopping practice sessions...")
	sessionManager.Shutdown()
	log.Info("Practice sessions stopped.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
