package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/api"
	"plantguard.io/leaf-doctor/internal/config"
	"plantguard.io/leaf-doctor/internal/core"
	"plantguard.io/leaf-doctor/internal/inference"
	"plantguard.io/leaf-doctor/internal/logger"
	"plantguard.io/leaf-doctor/internal/metrics"
	"plantguard.io/leaf-doctor/internal/store"
)

func main() {
	// Load configuration
	foundEnvFile, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging
	if err := logger.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	if !foundEnvFile {
		logger.Info("No .env file found, using environment variables")
	}

	// Command line flag for a one-off stats dump
	statsFlag := flag.Bool("stats", false, "Print diagnosis aggregates as JSON and exit")
	flag.Parse()

	// Initialize database store; it always holds users and optionally records.
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.GetLogger().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	var records store.RecordStore = store.NewFileStore(config.AppConfig.RecordsDir)
	if config.AppConfig.RecordStore == config.RecordStoreSQLite {
		records = dbStore
	}
	logger.Info("Record store selected", zap.String("backend", config.AppConfig.RecordStore))

	if *statsFlag {
		stats := make(map[string][]store.Count)
		for _, field := range []store.AggregateField{store.FieldDisease, store.FieldPlantType, store.FieldLocation} {
			stats[string(field)] = records.AggregateBy(field)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			logger.GetLogger().Fatal("Failed to write stats", zap.Error(err))
		}
		return
	}

	metrics.Init()

	// Initialize LLM backend
	completer, closeCompleter, err := core.NewCompleter(context.Background(), config.AppConfig)
	if err != nil {
		logger.GetLogger().Fatal("Failed to initialize LLM backend", zap.Error(err))
	}
	defer closeCompleter()

	inferenceClient := inference.NewClient(inference.ClientConfig{
		APIKey:         config.AppConfig.InferenceAPIKey,
		LeafTypeURL:    config.AppConfig.LeafTypeURL,
		LeafDiseaseURL: config.AppConfig.LeafDiseaseURL,
		Timeout:        config.AppConfig.InferenceTimeout,
	})

	// Initialize services
	sessions := core.NewSessionManager(config.AppConfig.MaxSessions, config.AppConfig.SessionTTL)
	diagnosisService := core.NewDiagnosisService(inferenceClient, completer, records, config.AppConfig.MaxUploadBytes)
	chatService := core.NewChatService(completer)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(api.HandlerDeps{
		Users:          dbStore,
		Records:        records,
		Sessions:       sessions,
		Diagnosis:      diagnosisService,
		Chat:           chatService,
		MaxUploadBytes: config.AppConfig.MaxUploadBytes,
	})
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // Uploads can be large
		WriteTimeout: 3 * time.Minute,  // Two inference calls plus one completion per disease
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server exiting gracefully")
}
